package entities

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Ingestion caps. The knowledge store never holds more than these.
const (
	GeneralContentLimit     = 10000
	MenuContentLimit        = 15000
	MaxKnowledgeChars       = MenuContentLimit
	MaxProducts             = 50
	MaxLinks                = 20
	ProductDescriptionLimit = 200
)

// MaxTenantIDLength bounds tenant ids, which end up in URLs and log lines.
const MaxTenantIDLength = 64

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidTenantID accepts letters, digits, '-' and '_'.
func ValidTenantID(id string) bool {
	if id == "" || len(id) > MaxTenantIDLength {
		return false
	}
	return tenantIDPattern.MatchString(id)
}

// ExtractionMode selects how a scraped page is turned into knowledge.
type ExtractionMode string

const (
	ModeGeneral  ExtractionMode = "general"
	ModeMenu     ExtractionMode = "menu"
	ModeProducts ExtractionMode = "products"
)

// ParseExtractionMode maps unknown or empty values to ModeGeneral.
func ParseExtractionMode(s string) ExtractionMode {
	switch ExtractionMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMenu:
		return ModeMenu
	case ModeProducts:
		return ModeProducts
	default:
		return ModeGeneral
	}
}

// KnowledgeSource records who wrote the knowledge text last.
type KnowledgeSource string

const (
	SourceManual       KnowledgeSource = "manual"
	SourceAutoScraping KnowledgeSource = "auto-scraping"
)

type Product struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Persona is the tenant-facing configuration of the bot. The core only reads it.
type Persona struct {
	Name         string `json:"name"`
	Language     string `json:"language"`
	BotName      string `json:"botName,omitempty"`
	BotSubtitle  string `json:"botSubtitle,omitempty"`
	PrimaryColor string `json:"primaryColor"`
	Email        string `json:"email"`
	Active       *bool  `json:"active,omitempty"`
}

// IsActive treats an unset flag as active.
func (p Persona) IsActive() bool {
	return p.Active == nil || *p.Active
}

// Knowledge is the per-tenant knowledge record.
type Knowledge struct {
	Content       string          `json:"content"`
	Products      []Product       `json:"products,omitempty"`
	Links         []Link          `json:"links,omitempty"`
	SourceTitle   string          `json:"sourceTitle,omitempty"`
	Source        KnowledgeSource `json:"source"`
	AutoUpdateURL string          `json:"autoUpdateUrl,omitempty"`
	AutoUpdate    *bool           `json:"autoUpdate,omitempty"`
	ScrapeType    ExtractionMode  `json:"scrapeType,omitempty"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// AutoRefreshEligible reports whether the scheduler should refresh this record:
// a source URL is configured and auto-update was not explicitly disabled.
func (k Knowledge) AutoRefreshEligible() bool {
	if strings.TrimSpace(k.AutoUpdateURL) == "" {
		return false
	}
	return k.AutoUpdate == nil || *k.AutoUpdate
}

type Tenant struct {
	ID                 string    `json:"clientId"`
	Persona            Persona   `json:"config"`
	Knowledge          Knowledge `json:"rag"`
	ClientPasswordHash string    `json:"clientPasswordHash,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
}

// DefaultPersona is applied to tenants created without a persona.
func DefaultPersona() Persona {
	return Persona{
		Name:         "Nouveau Client",
		PrimaryColor: "#667eea",
		Language:     "fr",
	}
}

// PersonaUpdate carries optional persona fields; nil means "keep existing".
type PersonaUpdate struct {
	Name         *string `json:"name"`
	Language     *string `json:"language"`
	BotName      *string `json:"botName"`
	BotSubtitle  *string `json:"botSubtitle"`
	PrimaryColor *string `json:"primaryColor"`
	Email        *string `json:"email"`
	Active       *bool   `json:"active"`
}

// KnowledgeUpdate carries optional knowledge fields; nil means "keep existing".
type KnowledgeUpdate struct {
	Content       *string          `json:"content"`
	Products      *[]Product       `json:"products"`
	Links         *[]Link          `json:"links"`
	SourceTitle   *string          `json:"sourceTitle"`
	Source        *KnowledgeSource `json:"source"`
	AutoUpdateURL *string          `json:"autoUpdateUrl"`
	AutoUpdate    *bool            `json:"autoUpdate"`
	ScrapeType    *ExtractionMode  `json:"scrapeType"`
}

// TenantUpdate is a partial update of a tenant record.
// ClientPassword is hashed by the caller and never stored in clear.
type TenantUpdate struct {
	Persona        *PersonaUpdate   `json:"config"`
	Knowledge      *KnowledgeUpdate `json:"rag"`
	ClientPassword *string          `json:"clientPassword"`
}

// Merge applies u onto the persona. Set fields win, nil fields are retained.
func (p Persona) Merge(u PersonaUpdate) Persona {
	setString(&p.Name, u.Name)
	setString(&p.Language, u.Language)
	setString(&p.BotName, u.BotName)
	setString(&p.BotSubtitle, u.BotSubtitle)
	setString(&p.PrimaryColor, u.PrimaryColor)
	setString(&p.Email, u.Email)
	if u.Active != nil {
		v := *u.Active
		p.Active = &v
	}
	return p
}

// Merge applies u onto the knowledge record, enforces the ingestion caps and
// stamps LastUpdated with now.
func (k Knowledge) Merge(u KnowledgeUpdate, now time.Time) Knowledge {
	if u.Content != nil {
		k.Content = TruncateChars(*u.Content, MaxKnowledgeChars)
	}
	if u.Products != nil {
		k.Products = CapProducts(*u.Products)
	}
	if u.Links != nil {
		links := *u.Links
		if len(links) > MaxLinks {
			links = links[:MaxLinks]
		}
		k.Links = append([]Link(nil), links...)
	}
	setString(&k.SourceTitle, u.SourceTitle)
	if u.Source != nil {
		k.Source = *u.Source
	}
	setString(&k.AutoUpdateURL, u.AutoUpdateURL)
	if u.AutoUpdate != nil {
		v := *u.AutoUpdate
		k.AutoUpdate = &v
	}
	if u.ScrapeType != nil {
		k.ScrapeType = ParseExtractionMode(string(*u.ScrapeType))
	}
	k.LastUpdated = now
	return k
}

// Apply merges u into a copy of t.
func (t Tenant) Apply(u TenantUpdate, now time.Time) Tenant {
	if u.Persona != nil {
		t.Persona = t.Persona.Merge(*u.Persona)
	}
	if u.Knowledge != nil {
		t.Knowledge = t.Knowledge.Merge(*u.Knowledge, now)
	}
	t.UpdatedAt = now
	return t
}

// CapProducts enforces the product count and description caps.
func CapProducts(products []Product) []Product {
	if len(products) > MaxProducts {
		products = products[:MaxProducts]
	}
	out := make([]Product, len(products))
	for i, p := range products {
		p.Description = TruncateChars(p.Description, ProductDescriptionLimit)
		out[i] = p
	}
	return out
}

// FormatProducts renders a product list as knowledge text.
func FormatProducts(products []Product) string {
	if len(products) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Available Products:\n\n")
	for _, p := range products {
		sb.WriteString(fmt.Sprintf("- %s | Price: %s\n", p.Name, p.Price))
		if p.Description != "" {
			sb.WriteString(fmt.Sprintf("  Details: %s\n", p.Description))
		}
	}
	return strings.TrimSpace(sb.String())
}

// TruncateChars cuts s to at most max characters without splitting a rune.
func TruncateChars(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
