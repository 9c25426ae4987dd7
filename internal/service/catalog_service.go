package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/repository"
)

// CatalogService manages the clients and projects time is billed against
type CatalogService interface {
	AddClient(ctx context.Context, ownerID, name, email, company string) (*domain.Client, error)
	ListClients(ctx context.Context, ownerID string) ([]*domain.Client, error)

	// ResolveClient accepts either an id or an exact name
	ResolveClient(ctx context.Context, ownerID, ref string) (*domain.Client, error)

	AddProject(ctx context.Context, ownerID, name string, clientID *string, hourlyRate decimal.Decimal) (*domain.Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]*domain.Project, error)

	// ResolveProject accepts either an id or an exact name
	ResolveProject(ctx context.Context, ownerID, ref string) (*domain.Project, error)
}

type catalogService struct {
	store repository.Store
	clock domain.Clock
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store repository.Store, clock domain.Clock) CatalogService {
	return &catalogService{store: store, clock: clock}
}

func (s *catalogService) AddClient(ctx context.Context, ownerID, name, email, company string) (*domain.Client, error) {
	client := domain.NewClient(ownerID, name, email, company, s.clock.Now())
	if err := client.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Clients().GetByName(ctx, ownerID, client.Name); err == nil {
			return fmt.Errorf("%w: client %q already exists", domain.ErrConflict, client.Name)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return tx.Clients().Create(ctx, client)
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *catalogService) ListClients(ctx context.Context, ownerID string) ([]*domain.Client, error) {
	return s.store.Clients().List(ctx, ownerID)
}

func (s *catalogService) ResolveClient(ctx context.Context, ownerID, ref string) (*domain.Client, error) {
	client, err := s.store.Clients().GetByID(ctx, ownerID, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return s.store.Clients().GetByName(ctx, ownerID, ref)
	}
	return client, err
}

func (s *catalogService) AddProject(
	ctx context.Context,
	ownerID, name string,
	clientID *string,
	hourlyRate decimal.Decimal,
) (*domain.Project, error) {
	project := domain.NewProject(ownerID, name, clientID, hourlyRate, s.clock.Now())
	if err := project.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if clientID != nil {
			if _, err := tx.Clients().GetByID(ctx, ownerID, *clientID); err != nil {
				return err
			}
		}
		if _, err := tx.Projects().GetByName(ctx, ownerID, project.Name); err == nil {
			return fmt.Errorf("%w: project %q already exists", domain.ErrConflict, project.Name)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return tx.Projects().Create(ctx, project)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *catalogService) ListProjects(ctx context.Context, ownerID string) ([]*domain.Project, error) {
	return s.store.Projects().List(ctx, ownerID)
}

func (s *catalogService) ResolveProject(ctx context.Context, ownerID, ref string) (*domain.Project, error) {
	project, err := s.store.Projects().GetByID(ctx, ownerID, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return s.store.Projects().GetByName(ctx, ownerID, ref)
	}
	return project, err
}
