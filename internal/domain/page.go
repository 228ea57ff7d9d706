package domain

import "math"

// PageSize is the fixed number of products per listing page.
const PageSize = 8

// TopRatedLimit is the number of products returned by the top-rated listing.
const TopRatedLimit = 3

// ProductPage is one page of a product listing.
type ProductPage struct {
	Products []Product `json:"products"`
	Page     int       `json:"page"`
	Pages    int       `json:"pages"`
}

// NormalizePage maps missing, zero and negative page numbers to 1.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// Pages returns ceil(total/size).
func Pages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Offset returns the number of items preceding page. Pages too large to
// address saturate at math.MaxInt, which lies past the end of any listing.
func Offset(page, size int) int {
	page = NormalizePage(page)
	if size <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (page - 1) * size
}
