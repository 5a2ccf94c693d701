package usecases

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"taiyari/internal/entities"
)

// Markup that never carries page content.
const noiseSelector = "script, style, noscript, nav, header, footer"

var (
	menuSelector = strings.Join([]string{
		`[class*="menu"]`,
		`[id*="menu"]`,
		`[class*="carte"]`,
		`[class*="plat"]`,
		`[class*="dish"]`,
	}, ", ")

	// Tried in order; the first one that yields any product wins.
	productSelectors = []string{
		`[class*="product"]`,
		`[class*="item"]`,
		`[data-product]`,
	}

	productNameSelector        = `[class*="title"], [class*="name"], h1, h2, h3`
	productPriceSelector       = `[class*="price"]`
	productDescriptionSelector = `[class*="description"]`

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// UnknownPrice is stored when a product has no price element.
const UnknownPrice = "N/A"

// ExtractedContent is the result of a successful extraction. Content is
// always populated and capped for the mode that produced it.
type ExtractedContent struct {
	Mode     entities.ExtractionMode
	Content  string
	Title    string
	Links    []entities.Link
	Products []entities.Product
}

// Extractor turns fetched HTML into knowledge. It performs no I/O.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses body according to mode. pageURL resolves relative links and
// may be empty. An empty result is reported as entities.ErrExtractionEmpty.
func (e *Extractor) Extract(body, pageURL string, mode entities.ExtractionMode) (ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ExtractedContent{}, fmt.Errorf("parse html: %w", err)
	}

	base, _ := url.Parse(pageURL)
	out := ExtractedContent{Mode: mode, Title: pageTitle(body, base, doc)}

	switch mode {
	case entities.ModeMenu:
		out.Content = extractMenu(doc)
	case entities.ModeProducts:
		out.Products = extractProducts(doc)
		out.Content = entities.TruncateChars(entities.FormatProducts(out.Products), entities.GeneralContentLimit)
	default:
		out.Mode = entities.ModeGeneral
		doc.Find(noiseSelector).Remove()
		out.Links = extractLinks(doc, base)
		out.Content = entities.TruncateChars(cleanText(doc.Find("body").Text()), entities.GeneralContentLimit)
	}

	if out.Content == "" {
		return ExtractedContent{}, fmt.Errorf("%s mode: %w", out.Mode, entities.ErrExtractionEmpty)
	}
	return out, nil
}

func extractMenu(doc *goquery.Document) string {
	var sb strings.Builder
	doc.Find(menuSelector).Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
		sb.WriteString("\n")
	})

	text := cleanText(sb.String())
	if text == "" {
		doc.Find(noiseSelector).Remove()
		text = cleanText(doc.Find("body").Text())
	}
	return entities.TruncateChars(text, entities.MenuContentLimit)
}

func extractProducts(doc *goquery.Document) []entities.Product {
	var products []entities.Product
	for _, sel := range productSelectors {
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			name := cleanText(s.Find(productNameSelector).First().Text())
			if name == "" {
				return true
			}
			price := cleanText(s.Find(productPriceSelector).First().Text())
			if price == "" {
				price = UnknownPrice
			}
			products = append(products, entities.Product{
				Name:        name,
				Price:       price,
				Description: cleanText(s.Find(productDescriptionSelector).First().Text()),
			})
			return len(products) < entities.MaxProducts
		})
		if len(products) > 0 {
			break
		}
	}
	return entities.CapProducts(products)
}

func extractLinks(doc *goquery.Document, base *url.URL) []entities.Link {
	var links []entities.Link
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		text := cleanText(s.Text())
		if text == "" || !strings.HasPrefix(href, "/") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		if base != nil && base.IsAbs() {
			ref = base.ResolveReference(ref)
		}
		links = append(links, entities.Link{Text: text, URL: ref.String()})
		return len(links) < entities.MaxLinks
	})
	return links
}

func pageTitle(body string, base *url.URL, doc *goquery.Document) string {
	if base != nil && base.IsAbs() {
		if article, err := readability.FromReader(strings.NewReader(body), base); err == nil {
			if t := strings.TrimSpace(article.Title); t != "" {
				return t
			}
		}
	}
	return cleanText(doc.Find("title").First().Text())
}

// cleanText collapses whitespace. A run containing a line break becomes a
// single newline, any other run a single space.
func cleanText(s string) string {
	s = whitespaceRun.ReplaceAllStringFunc(s, func(run string) string {
		if strings.ContainsAny(run, "\n\r") {
			return "\n"
		}
		return " "
	})
	return strings.TrimSpace(s)
}
