// Package bot runs the customer conversation that collects an order in a chat.
package bot

import (
	"strconv"
	"time"

	"github.com/jogardn/laser-orders/internal/pricing"
	"github.com/jogardn/laser-orders/pkg/models"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

const DefaultSessionTTL = 30 * time.Minute

type Step string

const (
	StepIdle        Step = ""
	StepService     Step = "service"
	StepMaterial    Step = "material"
	StepTier        Step = "tier"
	StepQuantity    Step = "quantity"
	StepArea        Step = "area"
	StepComplexity  Step = "complexity"
	StepLength      Step = "length"
	StepDetailCount Step = "detail_count"
	StepPhone       Step = "phone"
	StepName        Step = "name"
	StepEmail       Step = "email"
	StepCity        Step = "city"
	StepDescription Step = "description"
	StepConfirm     Step = "confirm"
	StepLookupPhone Step = "lookup_phone"
)

// Draft is the order being assembled.
type Draft struct {
	Service     models.ServiceType
	Material    string
	Tier        string
	Quantity    int
	Area        decimal.Decimal
	Complexity  decimal.Decimal
	Length      decimal.Decimal
	DetailCount int
	Items       []models.ShopItem
	Name        string
	Phone       string
	Email       string
	City        string
	Description string
	Quote       *pricing.Quote
}

type Session struct {
	UserID    int64
	Step      Step
	Draft     Draft
	Phone     string
	UpdatedAt time.Time
}

// SessionStore keeps at most one session per user. Sessions expire when the
// user stays silent for longer than the store's TTL.
type SessionStore interface {
	Get(userID int64) (*Session, bool)
	Save(session *Session)
	Delete(userID int64)
}

type CacheStore struct {
	cache *cache.Cache
}

func NewCacheStore(ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &CacheStore{cache: cache.New(ttl, ttl/2)}
}

func (s *CacheStore) Get(userID int64) (*Session, bool) {
	v, ok := s.cache.Get(key(userID))
	if !ok {
		return nil, false
	}
	session := *v.(*Session)
	return &session, true
}

func (s *CacheStore) Save(session *Session) {
	stored := *session
	stored.UpdatedAt = time.Now()
	s.cache.SetDefault(key(session.UserID), &stored)
}

func (s *CacheStore) Delete(userID int64) {
	s.cache.Delete(key(userID))
}

func (s *CacheStore) Count() int {
	return s.cache.ItemCount()
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
