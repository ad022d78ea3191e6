package core

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Page selects a slice of a listing. Number is 1-based.
type Page struct {
	Number int `query:"page"`
	Size   int `query:"limit"`
}

func (p *Page) Clean() {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(p Page, total int) Pagination {
	var pages int
	if p.Size > 0 {
		pages = int(math.Ceil(float64(total) / float64(p.Size)))
	}
	return Pagination{
		Page:  p.Number,
		Limit: p.Size,
		Total: total,
		Pages: pages,
	}
}

// Round1 rounds f to 1 decimal place.
func Round1(f float64) float64 {
	return math.Round(f*10) / 10
}
