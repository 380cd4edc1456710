package models

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Page - страница результатов с метаданными пагинации (page начинается с 1)
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

// NewPage собирает страницу и считает число страниц
func NewPage[T any](items []T, total, page, perPage int) *Page[T] {
	if items == nil {
		items = make([]T, 0)
	}
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return &Page[T]{Items: items, Total: total, Page: page, PerPage: perPage, Pages: pages}
}

// NormalizePage приводит параметры пагинации к допустимым значениям
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// Offset возвращает смещение для LIMIT/OFFSET
func Offset(page, perPage int) int {
	return (page - 1) * perPage
}
