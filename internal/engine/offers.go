package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/repo"
	"assetline/internal/track"
)

// OfferCreateOptions are parameters for recording an inbound offer.
type OfferCreateOptions struct {
	HubID      int64
	Source     string
	Status     string
	Price      decimal.Decimal
	BuyerName  string
	BrokerID   string
	Notes      string
	ReceivedOn string
	ActorID    string
}

func (e Engine) CreateOffer(ctx context.Context, opts OfferCreateOptions) (domain.Offer, error) {
	status := opts.Status
	if status == "" {
		status = track.OfferPending
	}
	if !track.ValidOfferSource(opts.Source) {
		return domain.Offer{}, fmt.Errorf("invalid offer source %s", opts.Source)
	}
	if !track.ValidOfferStatus(status) {
		return domain.Offer{}, fmt.Errorf("invalid offer status %s", status)
	}
	now := e.now().UTC().Format(time.RFC3339)
	o := domain.Offer{
		ID:         uuid.New().String(),
		HubID:      opts.HubID,
		Source:     opts.Source,
		Status:     status,
		Price:      opts.Price,
		BuyerName:  opts.BuyerName,
		BrokerID:   optionalString(opts.BrokerID),
		Notes:      opts.Notes,
		ReceivedOn: optionalString(opts.ReceivedOn),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Validate(); err != nil {
		return domain.Offer{}, err
	}
	if _, err := e.Repo.GetAsset(ctx, opts.HubID); err != nil {
		return domain.Offer{}, err
	}
	if o.BrokerID != nil {
		if _, err := e.Repo.GetBroker(ctx, *o.BrokerID); err != nil {
			return domain.Offer{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Offer{}, err
	}
	defer tx.Rollback()

	if o.Status == track.OfferAccepted {
		taken, err := e.Repo.HasAcceptedOfferTx(ctx, tx, o.HubID, o.Source, o.ID)
		if err != nil {
			return domain.Offer{}, err
		}
		if taken {
			return domain.Offer{}, ErrOfferConflict
		}
	}
	if err := e.Repo.InsertOfferTx(ctx, tx, o); err != nil {
		return domain.Offer{}, err
	}
	if err := e.Events.Append(ctx, tx, "offer.created", o.HubID, "offer", o.ID, opts.ActorID, events.EventPayload{
		"source": o.Source,
		"status": o.Status,
		"price":  o.Price.String(),
	}); err != nil {
		return domain.Offer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Offer{}, err
	}
	return o, nil
}

// OfferUpdateOptions encapsulates allowed updates; nil fields are left untouched.
type OfferUpdateOptions struct {
	ID         string
	Status     *string
	Price      *decimal.Decimal
	BuyerName  *string
	BrokerID   *string
	Notes      *string
	ReceivedOn *string
	ActorID    string
}

func (e Engine) UpdateOffer(ctx context.Context, opts OfferUpdateOptions) (domain.Offer, error) {
	o, err := e.Repo.GetOffer(ctx, opts.ID)
	if err != nil {
		return o, err
	}
	fromStatus := o.Status
	if opts.Status != nil {
		if !track.ValidOfferStatus(*opts.Status) {
			return o, fmt.Errorf("invalid offer status %s", *opts.Status)
		}
		o.Status = *opts.Status
	}
	if opts.Price != nil {
		o.Price = *opts.Price
	}
	if opts.BuyerName != nil {
		o.BuyerName = *opts.BuyerName
	}
	if opts.BrokerID != nil {
		if *opts.BrokerID == "" {
			o.BrokerID = nil
		} else {
			if _, err := e.Repo.GetBroker(ctx, *opts.BrokerID); err != nil {
				return o, err
			}
			o.BrokerID = opts.BrokerID
		}
	}
	if opts.Notes != nil {
		o.Notes = *opts.Notes
	}
	if opts.ReceivedOn != nil {
		if *opts.ReceivedOn == "" {
			o.ReceivedOn = nil
		} else {
			o.ReceivedOn = opts.ReceivedOn
		}
	}
	if err := o.Validate(); err != nil {
		return o, err
	}
	o.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()

	if o.Status == track.OfferAccepted && fromStatus != track.OfferAccepted {
		taken, err := e.Repo.HasAcceptedOfferTx(ctx, tx, o.HubID, o.Source, o.ID)
		if err != nil {
			return o, err
		}
		if taken {
			return o, ErrOfferConflict
		}
	}
	if err := e.Repo.UpdateOfferTx(ctx, tx, o); err != nil {
		return o, err
	}
	evtType := "offer.updated"
	if o.Status == track.OfferAccepted && fromStatus != track.OfferAccepted {
		evtType = "offer.accepted"
	}
	if err := e.Events.Append(ctx, tx, evtType, o.HubID, "offer", o.ID, opts.ActorID, events.EventPayload{
		"from_status": fromStatus,
		"to_status":   o.Status,
	}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// AcceptOffer marks an offer accepted. At most one offer per hub and source
// may hold the accepted status, so a second accept is refused.
func (e Engine) AcceptOffer(ctx context.Context, id, actorID string) (domain.Offer, error) {
	accepted := track.OfferAccepted
	return e.UpdateOffer(ctx, OfferUpdateOptions{ID: id, Status: &accepted, ActorID: actorID})
}

func (e Engine) DeleteOffer(ctx context.Context, id, actorID string) error {
	o, err := e.Repo.GetOffer(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteOfferTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "offer.deleted", o.HubID, "offer", id, actorID, events.EventPayload{"source": o.Source}); err != nil {
		return err
	}
	return tx.Commit()
}

// OffersForHub lists a hub's offers newest first, optionally narrowed by
// source or status.
func (e Engine) OffersForHub(ctx context.Context, hubID int64, source, status string) ([]domain.Offer, error) {
	if _, err := e.Repo.GetAsset(ctx, hubID); err != nil {
		return nil, err
	}
	return e.Repo.ListOffers(ctx, repo.OfferFilters{HubID: hubID, Source: source, Status: status})
}
