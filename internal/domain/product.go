package domain

import (
	"strings"
	"time"
)

// Product — позиция каталога с единственным авторитетным счётчиком остатка.
//
// Quantity меняется только через Tx.DebitStock и Tx.CreditStock.
type Product struct {
	ID          string
	Name        string
	Brand       string
	Description string
	Image       string
	PriceMinor  int64
	Quantity    int32
	// Specs хранит характеристики телефона (network, display, os, cpu, ram ...).
	Specs        map[string]string
	IsNewArrival bool
	IsTopSelling bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// ArchivedAt выставляется при удалении из каталога. Строка остаётся,
	// чтобы отмена старых заказов могла вернуть товар на склад.
	ArchivedAt *time.Time
}

// Archived сообщает, снят ли товар с продажи.
func (p Product) Archived() bool {
	return p.ArchivedAt != nil
}

// ValidateInvariants проверяет карточку товара перед созданием.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrProductPriceNegative)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrProductQtyNegative)
	}

	return errs
}

// Clone возвращает копию без общих ссылок на Specs и ArchivedAt.
func (p Product) Clone() Product {
	if p.ArchivedAt != nil {
		at := *p.ArchivedAt
		p.ArchivedAt = &at
	}
	if p.Specs == nil {
		return p
	}
	specs := make(map[string]string, len(p.Specs))
	for k, v := range p.Specs {
		specs[k] = v
	}
	p.Specs = specs
	return p
}
