package repository

import (
	"github.com/billcraft/billcraft/internal/domain/account"
	"github.com/billcraft/billcraft/internal/domain/catalog"
	"github.com/billcraft/billcraft/internal/domain/credit"
	"github.com/billcraft/billcraft/internal/domain/invoice"
	"github.com/billcraft/billcraft/internal/domain/subscription"
)

// Constructors returning the domain repository interfaces, for wiring into
// the dependency graph.

func NewAccountRepository() account.Repository {
	return NewInMemoryAccountStore()
}

func NewCatalogRepository() catalog.Repository {
	return NewInMemoryCatalogStore()
}

func NewSubscriptionRepository() subscription.Repository {
	return NewInMemorySubscriptionStore()
}

func NewInvoiceRepository() invoice.Repository {
	return NewInMemoryInvoiceStore()
}

func NewCreditRepository() credit.Repository {
	return NewInMemoryCreditStore()
}
