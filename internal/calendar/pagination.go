package calendar

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page описывает одну страницу элементов.
type Page[T any] struct {
	Items    []T   `json:"items"`     // элементы на текущей странице
	Page     int   `json:"page"`      // номер страницы (с 1)
	PageSize int   `json:"page_size"` // количество элементов на странице
	HasNext  bool  `json:"has_next"`
	HasPrev  bool  `json:"has_prev"`
	Total    int64 `json:"total"` // общее количество элементов
}

// ClampPage приводит page и pageSize к допустимым значениям.
// Некорректные значения не отвергаются, а зажимаются: page >= 1, pageSize в [1, 100],
// нулевой или отрицательный pageSize даёт значение по умолчанию.
func ClampPage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Offset: смещение для SQL-запроса по уже зажатым page/pageSize.
func Offset(page, pageSize int) int {
	return (page - 1) * pageSize
}

// NewPage собирает страницу из элементов, выбранных из БД, и общего количества.
func NewPage[T any](items []T, page, pageSize int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	end := int64(Offset(page, pageSize) + len(items))
	return Page[T]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		HasNext:  end < total,
		HasPrev:  page > 1,
		Total:    total,
	}
}

// Paginate возвращает срез items для указанной страницы и метаданные.
// Используется там, где список уже целиком в памяти.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	page, pageSize = ClampPage(page, pageSize)

	total := len(items)

	start := Offset(page, pageSize)
	if start > total {
		start = total
	}

	end := start + pageSize
	if end > total {
		end = total
	}

	return NewPage(items[start:end], page, pageSize, int64(total))
}
