package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/google/uuid"
)

const (
	// SearchPageSize is the id stride between generated result pages.
	SearchPageSize = 8
	// SearchMaxPage is the last page that still reports more results.
	SearchMaxPage = 3

	SortRelevance = "relevance"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortSqft      = "sqft"
)

type listing struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Address     string   `json:"address"`
	Price       string   `json:"price"`
	PriceType   string   `json:"priceType"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Badges      []string `json:"badges"`
	AuctionDate string   `json:"auctionDate"`
	HasOM       bool     `json:"hasOM"`
	Sqft        string   `json:"sqft,omitempty"`
	Type        string   `json:"type,omitempty"`
}

func img(id string) string {
	return "https://images.unsplash.com/photo-" + id + "?auto=format&fit=crop&w=400&q=80"
}

var featuredListings = []listing{
	{
		ID: 1, Name: "Downtown Retail Space", Location: "San Francisco, CA", Address: "123 Market Street",
		Price: "$2,500,000", PriceType: "Starting Bid", Description: "Prime downtown location • High foot traffic",
		Images: []string{img("1506744038136-46273834b3fb"), img("1560518883-ce09059eeffa"), img("1441986300917-64674bd600d8")},
		Badges: []string{"Video", "Auction"}, AuctionDate: "August 25th, 2025", HasOM: true,
	},
	{
		ID: 2, Name: "Modern Office Tower", Location: "Austin, TX", Address: "456 Congress Avenue",
		Price: "$8,900,000", PriceType: "Starting Bid", Description: "Class A office building • Downtown core",
		Images: []string{img("1464983953574-0892a716854b"), img("1486406146926-c627a92ad1ab"), img("1497366216548-37526070297c"), img("1497366754035-f200968a6e72")},
		Badges: []string{"Auction"}, AuctionDate: "September 2nd, 2025", HasOM: true,
	},
	{
		ID: 3, Name: "Industrial Warehouse", Location: "Chicago, IL", Address: "789 Industrial Drive",
		Price: "$4,200,000", PriceType: "Starting Bid", Description: "Distribution ready • Rail access available",
		Images: []string{img("1508921912186-1d1a45ebb3c1"), img("1601599561213-832382fd07ba"), img("1553413077-190dd305871c")},
		Badges: []string{"Video"}, AuctionDate: "August 30th, 2025", HasOM: true,
	},
}

var firstPageListings = []listing{
	{ID: 1, Name: "Downtown Retail Space", Location: "San Francisco, CA", Address: "123 Market Street", Price: "$2,500,000",
		Description: "Prime downtown location with high foot traffic. Perfect for retail operations.",
		Images:      []string{img("1506744038136-46273834b3fb"), img("1560518883-ce09059eeffa")},
		Badges:      []string{"Video", "Auction"}, AuctionDate: "August 25th, 2025", Sqft: "2,500 sq ft", Type: "Retail"},
	{ID: 2, Name: "Modern Office Tower", Location: "Austin, TX", Address: "456 Congress Avenue", Price: "$8,900,000",
		Description: "Class A office building in downtown core with modern amenities.",
		Images:      []string{img("1464983953574-0892a716854b"), img("1486406146926-c627a92ad1ab")},
		Badges:      []string{"Auction"}, AuctionDate: "September 2nd, 2025", Sqft: "50,000 sq ft", Type: "Office"},
	{ID: 3, Name: "Industrial Warehouse", Location: "Chicago, IL", Address: "789 Industrial Drive", Price: "$4,200,000",
		Description: "Distribution ready warehouse with rail access available.",
		Images:      []string{img("1508921912186-1d1a45ebb3c1"), img("1553413077-190dd305871c")},
		Badges:      []string{"Video"}, AuctionDate: "August 30th, 2025", Sqft: "100,000 sq ft", Type: "Industrial"},
	{ID: 4, Name: "Medical Office Building", Location: "Phoenix, AZ", Address: "321 Health Plaza", Price: "$3,800,000",
		Description: "Fully equipped medical office building with parking.",
		Images:      []string{img("1519494026892-80bbd2d6fd0d")},
		Badges:      []string{"Auction"}, AuctionDate: "September 15th, 2025", Sqft: "15,000 sq ft", Type: "Medical"},
	{ID: 5, Name: "Strip Mall Center", Location: "Dallas, TX", Address: "555 Shopping Way", Price: "$6,500,000",
		Description: "Established strip mall with multiple tenants and steady income.",
		Images:      []string{img("1441986300917-64674bd600d8")},
		Badges:      []string{"Video", "Auction"}, AuctionDate: "September 8th, 2025", Sqft: "25,000 sq ft", Type: "Retail"},
	{ID: 6, Name: "Tech Campus Building", Location: "Seattle, WA", Address: "777 Innovation Blvd", Price: "$12,000,000",
		Description: "Modern tech campus building with flexible office spaces.",
		Images:      []string{img("1497366216548-37526070297c")},
		Badges:      []string{"Auction"}, AuctionDate: "October 1st, 2025", Sqft: "75,000 sq ft", Type: "Office"},
	{ID: 7, Name: "Distribution Center", Location: "Atlanta, GA", Address: "888 Logistics Lane", Price: "$5,200,000",
		Description: "Strategic distribution center near major highways.",
		Images:      []string{img("1586528116311-ad8dd3c8310d")},
		Badges:      []string{"Video"}, AuctionDate: "September 22nd, 2025", Sqft: "120,000 sq ft", Type: "Industrial"},
	{ID: 8, Name: "Mixed-Use Development", Location: "Miami, FL", Address: "999 Urban Plaza", Price: "$15,500,000",
		Description: "Mixed-use development with retail and office spaces.",
		Images:      []string{img("1486406146926-c627a92ad1ab")},
		Badges:      []string{"Video", "Auction"}, AuctionDate: "October 10th, 2025", Sqft: "80,000 sq ft", Type: "Mixed-Use"},
}

// generatedTemplate describes one of the listings added to every page after the first.
type generatedTemplate struct {
	name, location, street, description, image, auctionDate, kind string
	streetBase                                                    int
	badges                                                        []string
	priceMin, priceSpan                                           float64
	sqftMin, sqftSpan                                             int
}

var generatedTemplates = []generatedTemplate{
	{name: "Commercial Plaza", location: "Denver, CO", streetBase: 100, street: "Commerce Street",
		description: "Prime commercial location with excellent visibility and parking.", image: "1486406146926-c627a92ad1ab",
		badges: []string{"Auction"}, auctionDate: "October 15th, 2025", kind: "Retail",
		priceMin: 2, priceSpan: 10, sqftMin: 10, sqftSpan: 50},
	{name: "Business Park", location: "Portland, OR", streetBase: 200, street: "Business Way",
		description: "Modern business park with flexible office and warehouse space.", image: "1497366754035-f200968a6e72",
		badges: []string{"Video", "Auction"}, auctionDate: "October 20th, 2025", kind: "Office",
		priceMin: 5, priceSpan: 15, sqftMin: 20, sqftSpan: 80},
	{name: "Manufacturing Facility", location: "Memphis, TN", streetBase: 300, street: "Industrial Blvd",
		description: "Large manufacturing facility with loading docks and rail access.", image: "1553413077-190dd305871c",
		badges: []string{"Video"}, auctionDate: "November 1st, 2025", kind: "Industrial",
		priceMin: 3, priceSpan: 8, sqftMin: 50, sqftSpan: 150},
	{name: "Shopping Center", location: "Nashville, TN", streetBase: 400, street: "Retail Row",
		description: "Anchored shopping center with national tenants and strong foot traffic.", image: "1441986300917-64674bd600d8",
		badges: []string{"Auction"}, auctionDate: "November 5th, 2025", kind: "Retail",
		priceMin: 4, priceSpan: 12, sqftMin: 15, sqftSpan: 60},
}

var assistantResponses = []string{
	"I'm analyzing your requirements...",
	"Based on your preferences, I'm finding properties that match...",
	"Let me search for properties in your preferred price range...",
	"Considering your location and budget preferences...",
	"I found several options that might interest you...",
}

type SearchQuery struct {
	Query string
	Page  int
	Type  string
	Sort  string
}

type SearchResult struct {
	ID       string            `json:"id"`
	Query    string            `json:"query"`
	Page     int               `json:"page"`
	HasMore  bool              `json:"hasMore"`
	Items    []entity.Property `json:"items"`
	Searched time.Time         `json:"searchedAt"`
}

type AssistantReply struct {
	ID      string `json:"id"`
	Query   string `json:"query"`
	Message string `json:"message"`
}

// Catalog serves the demo listings: the featured set, a simulated search and
// the assistant prompt. Every listing it has handed out can be looked up by id.
type Catalog struct {
	log   logger.Logger
	delay time.Duration
	rnd   func() float64

	mu    sync.RWMutex
	known map[entity.PropertyID]entity.Property
}

func NewCatalog(log logger.Logger, searchDelay time.Duration) *Catalog {
	c := &Catalog{
		log:   log.With("component", "catalog"),
		delay: searchDelay,
		rnd:   rand.Float64,
		known: make(map[entity.PropertyID]entity.Property),
	}
	c.remember(toProperties(firstPageListings))
	c.remember(toProperties(featuredListings))
	return c
}

func (c *Catalog) Featured() []entity.Property {
	return toProperties(featuredListings)
}

// Search simulates a slow backend: it waits for the configured delay, then
// returns the fixed first page or a freshly priced generated page.
func (c *Catalog) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return SearchResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	var listings []listing
	if q.Page == 1 {
		listings = append(listings, firstPageListings...)
	} else {
		listings = c.generatePage(q.Page)
	}
	listings = filterAndSort(listings, q.Type, q.Sort)

	items := toProperties(listings)
	c.remember(items)
	c.log.Debugw("search served", "query", q.Query, "page", q.Page, "results", len(items))

	return SearchResult{
		ID:       uuid.NewString(),
		Query:    q.Query,
		Page:     q.Page,
		HasMore:  q.Page < SearchMaxPage,
		Items:    items,
		Searched: time.Now().UTC(),
	}, nil
}

// Assist returns one of the canned assistant messages.
func (c *Catalog) Assist(query string) AssistantReply {
	i := int(c.rnd() * float64(len(assistantResponses)))
	if i >= len(assistantResponses) {
		i = len(assistantResponses) - 1
	}
	return AssistantReply{ID: uuid.NewString(), Query: strings.TrimSpace(query), Message: assistantResponses[i]}
}

// Lookup finds a listing the catalog has served before.
func (c *Catalog) Lookup(id entity.PropertyID) (entity.Property, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.known[id]
	if !ok {
		return entity.Property{}, fmt.Errorf("%w: %s", ErrPropertyNotFound, id)
	}
	return p, nil
}

func (c *Catalog) remember(items []entity.Property) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range items {
		c.known[p.ID] = p
	}
}

func (c *Catalog) generatePage(page int) []listing {
	base := page * SearchPageSize
	out := make([]listing, len(generatedTemplates))
	for i, t := range generatedTemplates {
		price := c.rnd()*t.priceSpan + t.priceMin
		sqft := int(c.rnd()*float64(t.sqftSpan)) + t.sqftMin
		out[i] = listing{
			ID:          base + i + 1,
			Name:        fmt.Sprintf("%s %d", t.name, page),
			Location:    t.location,
			Address:     fmt.Sprintf("%d %s", t.streetBase+base, t.street),
			Price:       fmt.Sprintf("$%.1fM", price),
			PriceType:   "Starting Bid",
			Description: t.description,
			Images:      []string{img(t.image)},
			Badges:      t.badges,
			AuctionDate: t.auctionDate,
			HasOM:       true,
			Sqft:        fmt.Sprintf("%dK sq ft", sqft),
			Type:        t.kind,
		}
	}
	return out
}

func filterAndSort(in []listing, kind, order string) []listing {
	out := in[:0:0]
	for _, l := range in {
		if kind == "" || strings.EqualFold(kind, "all") || strings.EqualFold(l.Type, kind) {
			out = append(out, l)
		}
	}
	switch order {
	case SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool { return amount(out[i].Price) < amount(out[j].Price) })
	case SortPriceHigh:
		sort.SliceStable(out, func(i, j int) bool { return amount(out[i].Price) > amount(out[j].Price) })
	case SortSqft:
		sort.SliceStable(out, func(i, j int) bool { return amount(out[i].Sqft) > amount(out[j].Sqft) })
	}
	return out
}

// amount reads the number out of a display string such as "$2,500,000",
// "$4.2M" or "50K sq ft".
func amount(s string) float64 {
	var digits strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			digits.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		return 0
	}
	upper := strings.ToUpper(s)
	switch {
	case strings.Contains(upper, "M"):
		v *= 1_000_000
	case strings.Contains(upper, "K"):
		v *= 1_000
	}
	return v
}

func toProperties(listings []listing) []entity.Property {
	out := make([]entity.Property, 0, len(listings))
	for _, l := range listings {
		if l.PriceType == "" {
			l.PriceType = "Starting Bid"
			l.HasOM = true
		}
		raw, err := json.Marshal(l)
		if err != nil {
			continue
		}
		p, err := entity.ParseProperty(raw)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
