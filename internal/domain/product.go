package domain

// Product is the catalog entry a cart line is priced from. UnitPrice is in minor units.
type Product struct {
	ID        string
	Name      string
	Category  string
	Image     string
	UnitPrice int64
}
