package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/core/domain"
	"github.com/rl1809/duka/internal/logger"
	"github.com/rl1809/duka/internal/port"
)

const (
	staffIDPrefix = "ST"
	staffIDLength = 4
)

// DirectoryService manages a shop's staff list and exposes its shop code.
type DirectoryService struct {
	repo port.Repository
	bus  port.ChangeBus
	opts Options
}

func NewDirectoryService(repo port.Repository, bus port.ChangeBus, opts Options) *DirectoryService {
	return &DirectoryService{repo: repo, bus: bus, opts: opts.withDefaults()}
}

// AddStaff creates an active staff member with a generated id.
func (d *DirectoryService) AddStaff(ctx context.Context, sess domain.Session, name string) (*domain.Staff, error) {
	if !sess.IsOwner() {
		return nil, &domain.ForbiddenError{Op: "add staff"}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errIncompleteForm
	}

	cctx, cancel := d.opts.call(ctx)
	defer cancel()

	staff := domain.Staff{
		ShopID:       sess.ShopID,
		Name:         name,
		ActiveStatus: true,
		CreatedAt:    d.opts.Now(),
	}
	var err error
	for i := 0; i < codeAttempts; i++ {
		staff.ID = staffIDPrefix + randomCode(staffIDLength)
		err = d.repo.CreateStaff(cctx, staff)
		if !errors.Is(err, port.ErrDuplicateKey) {
			break
		}
	}
	if err != nil {
		return nil, domain.Backend(domain.MsgStaffUpdateFailed, err)
	}

	logger.WithSession(d.opts.Logger, sess).Info("staff added", zap.String("staff_id", staff.ID))
	d.opts.publish(ctx, d.bus, port.FeedStaff, sess.ShopID)
	return &staff, nil
}

func (d *DirectoryService) ListStaff(ctx context.Context, sess domain.Session) ([]domain.Staff, error) {
	cctx, cancel := d.opts.call(ctx)
	defer cancel()

	staff, err := d.repo.ListStaff(cctx, sess.ShopID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}
	return staff, nil
}

// SetStaffActive flips a staff member's active flag. Owners may change anyone
// in their shop; staff may only change their own.
func (d *DirectoryService) SetStaffActive(ctx context.Context, sess domain.Session, staffID string, active bool) error {
	if !sess.IsOwner() && sess.ActorID != staffID {
		return &domain.ForbiddenError{Op: "change staff status"}
	}

	cctx, cancel := d.opts.call(ctx)
	defer cancel()

	if err := d.repo.SetStaffActive(cctx, sess.ShopID, staffID, active); err != nil {
		return passDomain(domain.MsgStaffUpdateFailed, err)
	}

	logger.WithSession(d.opts.Logger, sess).Info("staff status changed",
		zap.String("staff_id", staffID), zap.Bool("active", active))
	d.opts.publish(ctx, d.bus, port.FeedStaff, sess.ShopID)
	return nil
}

func (d *DirectoryService) Shop(ctx context.Context, sess domain.Session) (*domain.Shop, error) {
	cctx, cancel := d.opts.call(ctx)
	defer cancel()

	shop, err := d.repo.GetShop(cctx, sess.ShopID)
	if err != nil {
		return nil, passDomain(domain.MsgLoadFailed, err)
	}
	return shop, nil
}

// ShopCode is the code staff type in to sign in.
func (d *DirectoryService) ShopCode(ctx context.Context, sess domain.Session) (string, error) {
	shop, err := d.Shop(ctx, sess)
	if err != nil {
		return "", err
	}
	return shop.Code, nil
}
