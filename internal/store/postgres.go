package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parcelpoint/fulfillment/internal/order"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// orderRow is the database representation of an order aggregate. The
// full aggregate is stored as a JSON document; shipping references are
// denormalized into indexed columns for webhook reverse lookup. The
// tracking_no and channel_order_id columns are the legacy field
// locations from the pre-migration schema and are still consulted on
// lookup so in-flight shipments keep resolving.
type orderRow struct {
	ID            string `gorm:"primaryKey"`
	Status        string `gorm:"index"`
	Version       int64
	ShipmentID    string `gorm:"index"`
	RemoteOrderID string `gorm:"index"`
	AWB           string `gorm:"column:awb;index"`

	// Legacy locations, written by the previous schema only.
	TrackingNo     string `gorm:"column:tracking_no;index"`
	ChannelOrderID string `gorm:"column:channel_order_id;index"`

	Body      []byte `gorm:"type:jsonb"`
	PlacedOn  time.Time
	UpdatedAt time.Time
}

func (orderRow) TableName() string {
	return "orders"
}

// Postgres implements Store on top of gorm/postgres with optimistic
// concurrency: every save is conditional on the stored version.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres connects to the given DSN and migrates the orders table.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := db.AutoMigrate(&orderRow{}); err != nil {
		return nil, fmt.Errorf("migrating orders table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresWithDB wraps an existing gorm handle. Tests use this.
func NewPostgresWithDB(db *gorm.DB) (*Postgres, error) {
	if err := db.AutoMigrate(&orderRow{}); err != nil {
		return nil, fmt.Errorf("migrating orders table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) FindOrder(ctx context.Context, id string) (*order.Order, error) {
	var row orderRow
	if err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}
	return toOrder(row)
}

func (p *Postgres) SaveOrder(ctx context.Context, o *order.Order, expectedVersion int64) error {
	next := o.Clone()
	next.Version = expectedVersion + 1
	row, err := fromOrder(next)
	if err != nil {
		return err
	}

	if expectedVersion == 0 {
		if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
		o.Version = next.Version
		return nil
	}

	result := p.db.WithContext(ctx).
		Model(&orderRow{}).
		Where("id = ? AND version = ?", o.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":          row.Status,
			"version":         row.Version,
			"shipment_id":     row.ShipmentID,
			"remote_order_id": row.RemoteOrderID,
			"awb":             row.AWB,
			"body":            row.Body,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the row is gone or someone else won the version race.
		var count int64
		if err := p.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", o.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return &NotFoundError{ID: o.ID}
		}
		return ErrVersionConflict
	}
	o.Version = next.Version
	return nil
}

func (p *Postgres) FindOrderByShippingField(ctx context.Context, field ShippingField, value string) (*order.Order, error) {
	if value == "" {
		return nil, &NotFoundError{ID: string(field) + "=<empty>"}
	}

	q := p.db.WithContext(ctx)
	switch field {
	case FieldRemoteOrderID:
		q = q.Where("remote_order_id = ? OR channel_order_id = ?", value, value)
	case FieldShipmentID:
		q = q.Where("shipment_id = ?", value)
	case FieldAWB:
		q = q.Where("awb = ? OR tracking_no = ?", value, value)
	default:
		return nil, fmt.Errorf("unknown shipping field: %s", field)
	}

	var row orderRow
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{ID: string(field) + "=" + value}
		}
		return nil, err
	}
	return toOrder(row)
}

func (p *Postgres) FindActiveShipments(ctx context.Context) ([]*order.Order, error) {
	var rows []orderRow
	err := p.db.WithContext(ctx).
		Where("awb <> '' AND status IN ?", []string{
			string(order.StatusReadyToShip),
			string(order.StatusInTransit),
			string(order.StatusOutForDelivery),
		}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	orders := make([]*order.Order, 0, len(rows))
	for _, row := range rows {
		o, err := toOrder(row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func fromOrder(o *order.Order) (orderRow, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return orderRow{}, fmt.Errorf("marshaling order %s: %w", o.ID, err)
	}
	return orderRow{
		ID:            o.ID,
		Status:        string(o.Status),
		Version:       o.Version,
		ShipmentID:    o.Shipping.ShipmentID,
		RemoteOrderID: o.Shipping.RemoteOrderID,
		AWB:           o.Shipping.AWB,
		Body:          body,
		PlacedOn:      o.PlacedOn,
	}, nil
}

func toOrder(row orderRow) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(row.Body, &o); err != nil {
		return nil, fmt.Errorf("unmarshaling order %s: %w", row.ID, err)
	}
	o.Version = row.Version
	return &o, nil
}

// Ensure Postgres implements Store
var _ Store = (*Postgres)(nil)
