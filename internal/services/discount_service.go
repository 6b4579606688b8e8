package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/textutil"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	discountIDPrefix            = "dsc_"
	maxDiscountDescriptionRunes = 280
)

var (
	// ErrDiscountInvalidInput signals malformed discount input.
	ErrDiscountInvalidInput = errors.New("discount: invalid input")
	// ErrDiscountNotFound indicates the discount could not be located.
	ErrDiscountNotFound = errors.New("discount: not found")
	// ErrDiscountConflict indicates a duplicate or concurrent modification.
	ErrDiscountConflict = errors.New("discount: conflict")
	// ErrDiscountUnavailable indicates the discount store failed.
	ErrDiscountUnavailable = errors.New("discount: repository unavailable")
)

var discountRepoErrors = repositoryErrorClass{
	notFound:    ErrDiscountNotFound,
	conflict:    ErrDiscountConflict,
	unavailable: ErrDiscountUnavailable,
}

// DiscountServiceDeps bundles collaborators required to construct the discount service.
type DiscountServiceDeps struct {
	Discounts   repositories.DiscountRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type discountService struct {
	repo  repositories.DiscountRepository
	clock func() time.Time
	newID func() string
}

// NewDiscountService wires the discount service.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, errors.New("discount service: discount repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return discountIDPrefix + ulid.Make().String() }
	}
	return &discountService{
		repo:  deps.Discounts,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

// ListActive returns the discounts whose flag and date window are active right now.
func (s *discountService) ListActive(ctx context.Context) ([]domain.Discount, error) {
	discounts, err := s.repo.List(ctx, repositories.DiscountListFilter{ActiveOnly: true})
	if err != nil {
		return nil, discountRepoErrors.mapError(err)
	}
	now := s.clock()
	active := discounts[:0]
	for _, discount := range discounts {
		if discount.ActiveAt(now) {
			active = append(active, discount)
		}
	}
	return active, nil
}

func (s *discountService) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	discounts, err := s.repo.List(ctx, repositories.DiscountListFilter{})
	if err != nil {
		return nil, discountRepoErrors.mapError(err)
	}
	return discounts, nil
}

func (s *discountService) CreateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (domain.Discount, error) {
	now := s.clock()
	discount := discountFromCommand(cmd)
	discount.ID = s.newID()
	discount.CreatedAt = now
	discount.UpdatedAt = now
	if err := discount.Validate(); err != nil {
		return domain.Discount{}, fmt.Errorf("%w: %v", ErrDiscountInvalidInput, err)
	}
	if err := s.repo.Insert(ctx, discount); err != nil {
		return domain.Discount{}, discountRepoErrors.mapError(err)
	}
	return discount, nil
}

func (s *discountService) UpdateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (domain.Discount, error) {
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return domain.Discount{}, fmt.Errorf("%w: discount id is required", ErrDiscountInvalidInput)
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Discount{}, discountRepoErrors.mapError(err)
	}
	discount := discountFromCommand(cmd)
	discount.ID = id
	discount.CreatedAt = existing.CreatedAt
	discount.UpdatedAt = s.clock()
	if err := discount.Validate(); err != nil {
		return domain.Discount{}, fmt.Errorf("%w: %v", ErrDiscountInvalidInput, err)
	}
	if err := s.repo.Update(ctx, discount); err != nil {
		return domain.Discount{}, discountRepoErrors.mapError(err)
	}
	return discount, nil
}

func (s *discountService) DeleteDiscount(ctx context.Context, discountID string) error {
	discountID = strings.TrimSpace(discountID)
	if discountID == "" {
		return fmt.Errorf("%w: discount id is required", ErrDiscountInvalidInput)
	}
	if err := s.repo.Delete(ctx, discountID); err != nil {
		return discountRepoErrors.mapError(err)
	}
	return nil
}

func discountFromCommand(cmd UpsertDiscountCommand) domain.Discount {
	return domain.Discount{
		Name:        strings.TrimSpace(cmd.Name),
		Scope:       cmd.Scope,
		Adjustment:  cmd.Adjustment,
		StartsAt:    cmd.StartsAt,
		EndsAt:      cmd.EndsAt,
		Active:      cmd.Active,
		Description: textutil.SanitizePlain(cmd.Description, maxDiscountDescriptionRunes),
	}
}
