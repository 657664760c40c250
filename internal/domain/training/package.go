package training

import (
	"fmt"
	"math"
	"time"
)

// Kind is the variant of a billable training card.
type Kind string

const (
	KindPersonal  Kind = "personal"
	KindSplit     Kind = "split"
	KindMiniGroup Kind = "mini_group"
)

// Category is the trainer category the price list depends on.
type Category string

const (
	CategoryI   Category = "I"
	CategoryII  Category = "II"
	CategoryIII Category = "III"
)

const DefaultCoachPercent = 50

func (k Kind) Valid() bool {
	switch k {
	case KindPersonal, KindSplit, KindMiniGroup:
		return true
	}
	return false
}

// ParticipantBounds is the allowed participant count for the kind, inclusive.
func (k Kind) ParticipantBounds() (min, max int) {
	switch k {
	case KindSplit:
		return 2, 2
	case KindMiniGroup:
		return 3, 5
	default:
		return 1, 1
	}
}

// PricedPerParticipant reports whether packages of this kind are priced per person.
func (k Kind) PricedPerParticipant() bool {
	return k == KindSplit || k == KindMiniGroup
}

func (k Kind) Label() string {
	switch k {
	case KindSplit:
		return "Сплит"
	case KindMiniGroup:
		return "Мини-группа"
	default:
		return "Персональная"
	}
}

func (c Category) Valid() bool {
	switch c {
	case CategoryI, CategoryII, CategoryIII:
		return true
	}
	return false
}

// Package is one purchased block of sessions.
type Package struct {
	Count           int       `json:"count"`
	TotalPrice      float64   `json:"totalPrice,omitempty"`
	PricePerPerson  float64   `json:"pricePerPerson,omitempty"`
	Participants    int       `json:"participants,omitempty"`
	TrainerCategory Category  `json:"trainerCategory"`
	CoachPercent    float64   `json:"coachPercent"`
	PurchasedAt     time.Time `json:"purchasedAt"`
}

// Price is the full amount paid for the package.
func (p Package) Price() float64 {
	if p.PricePerPerson > 0 {
		participants := p.Participants
		if participants < 1 {
			participants = 1
		}
		return p.PricePerPerson * float64(participants)
	}
	return p.TotalPrice
}

// CoachIncomePerSession is the coach's share of one session of the package.
func (p Package) CoachIncomePerSession() float64 {
	count := p.Count
	if count < 1 {
		count = 1
	}
	percent := p.CoachPercent
	if percent <= 0 {
		percent = DefaultCoachPercent
	}
	return RoundMoney(p.Price() / float64(count) * percent / 100)
}

func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// PackageOption is one row of the price list.
type PackageOption struct {
	Count          int     `json:"count"`
	TotalPrice     float64 `json:"totalPrice,omitempty"`
	PricePerPerson float64 `json:"pricePerPerson,omitempty"`
}

// basePersonalPrices is the category I personal list.
var basePersonalPrices = []PackageOption{
	{Count: 1, TotalPrice: 1500},
	{Count: 5, TotalPrice: 6750},
	{Count: 10, TotalPrice: 12000},
	{Count: 25, TotalPrice: 27500},
}

// categoryMarkup scales the category I personal list. The II and III markups
// are house values until the club publishes its own tables.
var categoryMarkup = map[Category]float64{
	CategoryI:   1,
	CategoryII:  1.2,
	CategoryIII: 1.4,
}

// Split prices are the same for every category for now.
var splitPrices = []PackageOption{
	{Count: 1, PricePerPerson: 1200},
	{Count: 5, PricePerPerson: 5500},
	{Count: 10, PricePerPerson: 10000},
	{Count: 25, PricePerPerson: 24000},
}

// miniGroupShare of the split per-person price is charged per mini-group participant.
const miniGroupShare = 0.75

var (
	personalPrices  = buildPersonalPrices()
	miniGroupPrices = scalePerPerson(splitPrices, miniGroupShare)
)

func buildPersonalPrices() map[Category][]PackageOption {
	out := make(map[Category][]PackageOption, len(categoryMarkup))
	for category, markup := range categoryMarkup {
		opts := make([]PackageOption, len(basePersonalPrices))
		for i, o := range basePersonalPrices {
			opts[i] = PackageOption{Count: o.Count, TotalPrice: RoundMoney(o.TotalPrice * markup)}
		}
		out[category] = opts
	}
	return out
}

func scalePerPerson(base []PackageOption, factor float64) []PackageOption {
	out := make([]PackageOption, len(base))
	for i, o := range base {
		out[i] = PackageOption{Count: o.Count, PricePerPerson: RoundMoney(o.PricePerPerson * factor)}
	}
	return out
}

// PackageOptions returns the price list for a kind and trainer category.
func PackageOptions(kind Kind, category Category) []PackageOption {
	switch kind {
	case KindSplit:
		return splitPrices
	case KindMiniGroup:
		return miniGroupPrices
	default:
		if opts, ok := personalPrices[category]; ok {
			return opts
		}
		return personalPrices[CategoryI]
	}
}

// BuildPackage prices a package of count sessions from the catalog.
func BuildPackage(kind Kind, category Category, count, participants int, coachPercent float64, now time.Time) (Package, error) {
	if !kind.Valid() {
		return Package{}, fmt.Errorf("unknown card kind %q", kind)
	}
	if !category.Valid() {
		category = CategoryI
	}
	if coachPercent <= 0 {
		coachPercent = DefaultCoachPercent
	}
	for _, opt := range PackageOptions(kind, category) {
		if opt.Count != count {
			continue
		}
		pkg := Package{
			Count:           opt.Count,
			TrainerCategory: category,
			CoachPercent:    coachPercent,
			PurchasedAt:     now,
		}
		if kind.PricedPerParticipant() {
			pkg.PricePerPerson = opt.PricePerPerson
			pkg.Participants = participants
		} else {
			pkg.TotalPrice = opt.TotalPrice
		}
		return pkg, nil
	}
	return Package{}, fmt.Errorf("no %s package with %d sessions", kind, count)
}
