// Package catalog keeps the product catalog and persists it as YAML.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
	"github.com/fairyhunter13/self-checkout-simulator/internal/obs"
)

// ErrNotFound is returned when a product name is not in the catalog.
var ErrNotFound = errors.New("catalog: product not found")

// ErrInvalidProduct is returned for empty names or negative prices.
var ErrInvalidProduct = errors.New("catalog: invalid product")

type fileEntry struct {
	Price float64 `yaml:"price"`
}

type fileLayout struct {
	Products map[string]fileEntry `yaml:"products"`
}

// Store is a concurrency-safe product catalog. When path is non-empty every
// mutation is written back to the YAML file.
type Store struct {
	mu   sync.RWMutex
	m    map[string]float64
	path string
}

// New returns an empty in-memory catalog.
func New() *Store {
	return &Store{m: make(map[string]float64)}
}

// Open loads the catalog at path. A missing file yields an empty catalog
// and creates the file.
func Open(path string) (*Store, error) {
	s := &Store{m: make(map[string]float64), path: path}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		obs.Logger.Info("catalog_file_missing", "path", path)
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f fileLayout
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for name, e := range f.Products {
		s.m[Normalize(name)] = e.Price
	}
	obs.Logger.Info("catalog_loaded", "path", path, "products", len(s.m))
	return s, nil
}

// Normalize lowercases and trims a product name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// save writes the catalog file. Callers hold mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	f := fileLayout{Products: make(map[string]fileEntry, len(s.m))}
	for name, price := range s.m {
		f.Products[name] = fileEntry{Price: price}
	}
	b, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("catalog dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// All returns a copy of the catalog.
func (s *Store) All() model.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Catalog(s.m).Clone()
}

// Len returns the number of products.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Price returns the price for name.
func (s *Store) Price(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[Normalize(name)]
	return p, ok
}

// Add inserts or overwrites a product.
func (s *Store) Add(name string, price float64) (model.Product, error) {
	n := Normalize(name)
	if n == "" || price < 0 {
		return model.Product{}, ErrInvalidProduct
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[n] = price
	if err := s.save(); err != nil {
		return model.Product{}, err
	}
	return model.Product{Name: n, Price: price}, nil
}

// Update changes the price of an existing product.
func (s *Store) Update(name string, price float64) (model.Product, error) {
	n := Normalize(name)
	if price < 0 {
		return model.Product{}, ErrInvalidProduct
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[n]; !ok {
		return model.Product{}, ErrNotFound
	}
	s.m[n] = price
	if err := s.save(); err != nil {
		return model.Product{}, err
	}
	return model.Product{Name: n, Price: price}, nil
}

// Delete removes a product and returns its normalized name.
func (s *Store) Delete(name string) (string, error) {
	n := Normalize(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[n]; !ok {
		return "", ErrNotFound
	}
	delete(s.m, n)
	if err := s.save(); err != nil {
		return "", err
	}
	return n, nil
}

// Seed adds products that are not present yet. Existing prices win.
func (s *Store) Seed(products []model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, p := range products {
		n := Normalize(p.Name)
		if n == "" {
			continue
		}
		if _, ok := s.m[n]; ok {
			continue
		}
		s.m[n] = p.Price
		added++
	}
	if added == 0 {
		return nil
	}
	return s.save()
}

// DefaultSeed is the demo catalog used when the catalog starts empty.
var DefaultSeed = []model.Product{
	{Name: "laptop", Price: 10000},
	{Name: "smartphone", Price: 5000},
	{Name: "headphones", Price: 1000},
	{Name: "mouse", Price: 300},
	{Name: "keyboard", Price: 500},
	{Name: "monitor", Price: 3000},
	{Name: "tablet", Price: 4000},
	{Name: "usb drive", Price: 200},
	{Name: "hard drive", Price: 1500},
	{Name: "webcam", Price: 800},
}
