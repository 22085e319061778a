// Package model defines domain types shared by the hub and its clients.
package model

// CartItem is one cart line keyed by product name.
type CartItem struct {
	Price    float64 `json:"price" yaml:"price"`
	Quantity int     `json:"quantity" yaml:"quantity"`
}

// Cart maps lowercase product names to cart lines.
type Cart map[string]CartItem

// Clone returns an independent copy of the cart.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Total returns the sum of price * quantity over all lines.
func (c Cart) Total() float64 {
	var total float64
	for _, it := range c {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// Product is a single catalog entry.
type Product struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Catalog maps lowercase product names to prices.
type Catalog map[string]float64

// Clone returns an independent copy of the catalog.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// TransactionItem is a cart line frozen at checkout time.
type TransactionItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Subtotal float64 `json:"subtotal"`
}

// Transaction is a completed checkout.
type Transaction struct {
	ID            string            `json:"id"`
	Items         []TransactionItem `json:"items"`
	Total         float64           `json:"total"`
	Timestamp     string            `json:"timestamp"`
	FormattedDate string            `json:"formatted_date,omitempty"`
}

// SimulatedObject is a synthetic bounding box that stands in for a detection.
type SimulatedObject struct {
	Label       string  `json:"label"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	CreatedTime float64 `json:"created_time"`
}

// Detection is one bounding box reported by the external detector.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        [4]int  `json:"box"`
}

// DetectionBatch is all detections of a single camera frame.
type DetectionBatch struct {
	FrameWidth  int         `json:"frame_width"`
	FrameHeight int         `json:"frame_height"`
	Detections  []Detection `json:"detections"`
	Sequence    uint64      `json:"-"`
}
