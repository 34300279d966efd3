package models

import (
	"time"

	"github.com/google/uuid"
)

// Статус заказа — строковый тип, терминальные статусы неизменяемы.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "ORDER_STATUS_PENDING"
	OrderStatusConfirmed OrderStatus = "ORDER_STATUS_CONFIRMED"
	OrderStatusFailed    OrderStatus = "ORDER_STATUS_FAILED"
	OrderStatusCancelled OrderStatus = "ORDER_STATUS_CANCELLED"
)

// IsTerminal reports whether no further transition may leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailed || s == OrderStatusCancelled
}

type Order struct {
	ID              uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID   `gorm:"type:uuid;not null;index"`
	Status          OrderStatus `gorm:"type:text;not null;default:'ORDER_STATUS_PENDING';index"`
	TotalPriceCents int64       `gorm:"not null;default:0"`
	CurrencyCode    string      `gorm:"type:char(3);not null"`
	PaymentRef      *string     `gorm:"type:text"`
	CancelReason    *string     `gorm:"type:text"`
	Version         int64       `gorm:"not null;default:0"` // оптимистическая блокировка

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_order_items_order_product"`
	ProductID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_order_items_order_product"`
	Quantity       uint32    `gorm:"type:int;not null"`
	UnitPriceCents int64     `gorm:"not null"`
	LineTotalCents int64     `gorm:"not null"`
	CurrencyCode   string    `gorm:"type:char(3);not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (OrderItem) TableName() string { return "order_items" }

type Product struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string    `gorm:"type:text;not null"`
	PriceCents   int64     `gorm:"not null;default:0"`
	CurrencyCode string    `gorm:"type:char(3);not null;default:'RUB'"` // всегда RUB
	IsActive     bool      `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Product) TableName() string { return "products" }

// Inventory — складской счётчик: available уже за вычетом reserved.
type Inventory struct {
	ProductID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Available int32     `gorm:"not null;default:0"`
	Reserved  int32     `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Inventory) TableName() string { return "inventories" }

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
)

type Reservation struct {
	ID        uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID         `gorm:"type:uuid;not null;index;uniqueIndex:ux_reservations_order_product"`
	ProductID uuid.UUID         `gorm:"type:uuid;not null;index;uniqueIndex:ux_reservations_order_product"`
	Quantity  int32             `gorm:"not null"`
	Status    ReservationStatus `gorm:"type:text;not null;default:'PENDING';index"`
	ExpiresAt time.Time         `gorm:"not null;index"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Reservation) TableName() string { return "reservations" }

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PAYMENT_STATUS_PENDING"
	PaymentStatusRetrying PaymentStatus = "PAYMENT_STATUS_RETRYING"
	PaymentStatusSuccess  PaymentStatus = "PAYMENT_STATUS_SUCCESS"
	PaymentStatusFailed   PaymentStatus = "PAYMENT_STATUS_FAILED"
)

func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed
}

// Payment — ровно одна запись на заказ (uniqueIndex по order_id).
type Payment struct {
	ID           uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:ux_payments_order"`
	AmountCents  int64         `gorm:"not null"`
	CurrencyCode string        `gorm:"type:char(3);not null"`
	Status       PaymentStatus `gorm:"type:text;not null;default:'PAYMENT_STATUS_PENDING';index"`
	Attempts     int32         `gorm:"not null;default:0"`
	ProviderRef  *string       `gorm:"type:text"`
	LastError    *string       `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Payment) TableName() string { return "payments" }
