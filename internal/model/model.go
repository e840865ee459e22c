package model

import "time"

// Стеллажи

type Rack struct {
	Code string
	Data RackData
}
type RackData struct {
	Location      string
	CapacityTotal int
	CapacityUsed  int
	Status        string
}

const (
	RackStatusActive = "ACTIVE"
	RackStatusFull   = "FULL"
)

// Free свободное место на стеллаже (в коробках).
func (r Rack) Free() int {
	return r.Data.CapacityTotal - r.Data.CapacityUsed
}

// Отправления

type Shipment struct {
	ID   string
	Data ShipmentData
}
type ShipmentData struct {
	QRCode           string
	Client           Client
	OriginalBoxCount int
	CurrentBoxCount  int
	ArrivalDate      time.Time
	ReceivedDate     time.Time
	Status           string
	RackCode         string
	CreatedAt        time.Time
}

type Client struct {
	Name  string
	Phone string
	Email string
}

const (
	ShipmentStatusPending   = "PENDING"
	ShipmentStatusInStorage = "IN_STORAGE"
	ShipmentStatusPartial   = "PARTIAL"
	ShipmentStatusReleased  = "RELEASED"
)

// StorageStart дата начала платного хранения.
func (s Shipment) StorageStart() time.Time {
	switch {
	case !s.Data.ArrivalDate.IsZero():
		return s.Data.ArrivalDate
	case !s.Data.ReceivedDate.IsZero():
		return s.Data.ReceivedDate
	default:
		return s.Data.CreatedAt
	}
}

// Коробки

type Box struct {
	Key  BoxKey
	Data BoxData
}
type BoxKey struct {
	Shipment string
	Number   int
}
type BoxData struct {
	Status     string
	RackCode   string
	ReleasedAt time.Time
}

const (
	BoxStatusInStorage = "IN_STORAGE"
	BoxStatusReleased  = "RELEASED"
)

// BoxSelection какие коробки выдаются: все, перечисленные или первые Count по номеру.
type BoxSelection struct {
	All     bool
	Numbers []int
	Count   int
}

// Выдача (withdrawal)

type ReleaseType string

const (
	ReleaseTypeFull    ReleaseType = "FULL"
	ReleaseTypePartial ReleaseType = "PARTIAL"
)

type Withdrawal struct {
	ID            string
	ShipmentID    string
	RunID         string
	InvoiceID     string
	BoxCount      int
	BoxNumbers    []int
	WithdrawnBy   string
	CollectorID   string
	Reason        string
	Notes         string
	ReceiptNumber string
	ReleasePhotos []string
	Type          ReleaseType
	CreatedAt     time.Time
}
