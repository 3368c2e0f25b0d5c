package order

import (
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// Order is one synthetic retail order event. It is immutable once built and
// crosses process boundaries only in its JSON wire form; the message key is
// the order_id bytes.
type Order struct {
	OrderID          string  `json:"order_id"`
	User             string  `json:"user"`
	Item             string  `json:"item"`
	Category         string  `json:"category"`
	Quantity         int     `json:"quantity"`
	UnitPrice        float64 `json:"unit_price"`
	DiscountPct      int     `json:"discount_pct"`
	TotalAmount      float64 `json:"total_amount"`
	PaymentMethod    string  `json:"payment_method"`
	SalesChannel     string  `json:"sales_channel"`
	StoreCity        string  `json:"store_city"`
	PurchaseDatetime string  `json:"purchase_datetime"`
	PurchaseDate     string  `json:"purchase_date"`
	PurchaseTime     string  `json:"purchase_time"`
	WeekdayName      string  `json:"weekday_name"`
	WeekdayNum       int     `json:"weekday_num"`
	HourOfDay        int     `json:"hour_of_day"`
	IsWeekend        bool    `json:"is_weekend"`
	EventTimeMS      int64   `json:"event_time_ms"`
}

type product struct {
	item      string
	category  string
	basePrice float64
}

var catalog = []product{
	{"yogurt", "dairy", 3.20},
	{"potatoes", "vegetables", 2.10},
	{"apples", "fruit", 2.80},
	{"bananas", "fruit", 3.10},
	{"carrots", "vegetables", 2.40},
	{"cheese", "dairy", 8.50},
	{"bread", "bakery", 4.20},
	{"rice", "grains", 5.90},
	{"pasta", "grains", 6.20},
	{"eggs", "dairy", 7.30},
}

// weekdays is indexed Monday=0 so weekday_num matches the wire contract.
var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var paymentMethods = []string{"card", "blik", "cash", "mobile_wallet"}

var salesChannels = []string{"store", "online", "pickup"}

// Zeros dominate so most orders carry no discount.
var discountChoices = []int{0, 0, 0, 5, 10, 15}

// Generator builds fully populated orders from a single random source.
// It is the only stateful part of event creation; one Generator belongs to
// one producer loop and is not safe for concurrent use.
type Generator struct {
	rng   *rand.Rand
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewGenerator seeds a generator. The same seed reproduces the same order
// stream, which the tests rely on.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng:   rand.New(rand.NewSource(seed)),
		faker: gofakeit.New(uint64(seed)),
		now:   time.Now,
	}
}

// Order returns one valid order with a fresh unique identifier and
// internally consistent derived timestamp fields. event_time_ms is the
// generator's wall clock at the moment of creation, so it is monotonically
// non-decreasing across calls.
func (g *Generator) Order() Order {
	now := g.now()

	// Purchases are spread over the last 4 weeks at a random time of day.
	purchase := now.Add(-time.Duration(g.rng.Intn(28))*24*time.Hour -
		time.Duration(g.rng.Intn(24))*time.Hour -
		time.Duration(g.rng.Intn(60))*time.Minute -
		time.Duration(g.rng.Intn(60))*time.Second)

	p := catalog[g.rng.Intn(len(catalog))]
	quantity := 1 + g.rng.Intn(20)
	unitPrice := roundCents(p.basePrice*0.85 + g.rng.Float64()*(p.basePrice*1.20-p.basePrice*0.85))
	discountPct := discountChoices[g.rng.Intn(len(discountChoices))]
	total := roundCents(float64(quantity) * unitPrice * (1 - float64(discountPct)/100))

	weekdayNum := mondayWeekday(purchase)

	return Order{
		OrderID:          uuid.NewString(),
		User:             g.faker.Name(),
		Item:             p.item,
		Category:         p.category,
		Quantity:         quantity,
		UnitPrice:        unitPrice,
		DiscountPct:      discountPct,
		TotalAmount:      total,
		PaymentMethod:    paymentMethods[g.rng.Intn(len(paymentMethods))],
		SalesChannel:     salesChannels[g.rng.Intn(len(salesChannels))],
		StoreCity:        g.faker.City(),
		PurchaseDatetime: purchase.Format("2006-01-02T15:04:05"),
		PurchaseDate:     purchase.Format("2006-01-02"),
		PurchaseTime:     purchase.Format("15:04:05"),
		WeekdayName:      weekdays[weekdayNum],
		WeekdayNum:       weekdayNum,
		HourOfDay:        purchase.Hour(),
		IsWeekend:        weekdayNum >= 5,
		EventTimeMS:      now.UnixMilli(),
	}
}

// mondayWeekday maps Go's Sunday=0 convention to Monday=0.
func mondayWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
