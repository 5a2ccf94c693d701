package usecases

import (
	"strings"
)

// Supported response languages.
const (
	LanguageFrench  = "fr"
	LanguageEnglish = "en"
)

type personaTemplate struct {
	defaultName string
	persona     string // %NAME% is replaced by the tenant display name
	blockStart  string
	blockEnd    string
	grounding   string
	fallback    string
}

var personaTemplates = map[string]personaTemplate{
	LanguageFrench: {
		defaultName: "Notre entreprise",
		persona: `Tu es l'assistant virtuel de %NAME%.

PERSONNALITÉ :
- Amical, chaleureux et professionnel
- Concis et direct, sans excès
- Émojis avec parcimonie (1 ou 2 au plus)
- N'invente jamais rien

RÈGLES :
- Détecte la langue de l'utilisateur et réponds dans cette langue
- Si tu n'as pas la réponse, dis-le clairement
- Reste calme, même face à un client frustré
- Utilise une liste à puces quand il y a plusieurs informations`,
		blockStart: "=== BASE DE CONNAISSANCES ===",
		blockEnd:   "=== FIN DE LA BASE DE CONNAISSANCES ===",
		grounding: "Réponds UNIQUEMENT à partir des informations ci-dessus. " +
			"Si la réponse n'y figure pas, dis que tu ne sais pas.",
		fallback: "Désolé, je ne peux pas répondre pour le moment. Merci de réessayer dans quelques instants.",
	},
	LanguageEnglish: {
		defaultName: "our company",
		persona: `You are the virtual assistant for %NAME%.

PERSONALITY:
- Friendly, warm and professional
- Concise and direct, never overdone
- Emojis sparingly (1 or 2 at most)
- Never make anything up

RULES:
- Detect the user's language and answer in that language
- If you do not know the answer, say so clearly
- Stay calm, even with a frustrated customer
- Use bullet points when there are several pieces of information`,
		blockStart: "=== KNOWLEDGE BASE ===",
		blockEnd:   "=== END OF KNOWLEDGE BASE ===",
		grounding: "Answer ONLY from the information above. " +
			"If the answer is not there, say that you don't know.",
		fallback: "Sorry, I can't answer right now. Please try again in a moment.",
	},
}

// PromptBuilder assembles the generation instruction for a tenant.
type PromptBuilder struct {
	defaultLanguage string
}

// NewPromptBuilder falls back to French when defaultLanguage is unsupported.
func NewPromptBuilder(defaultLanguage string) *PromptBuilder {
	lang := strings.ToLower(strings.TrimSpace(defaultLanguage))
	if _, ok := personaTemplates[lang]; !ok {
		lang = LanguageFrench
	}
	return &PromptBuilder{defaultLanguage: lang}
}

// Language resolves a requested language to a supported one.
func (b *PromptBuilder) Language(requested string) string {
	lang := strings.ToLower(strings.TrimSpace(requested))
	if _, ok := personaTemplates[lang]; ok {
		return lang
	}
	return b.defaultLanguage
}

// Build renders the persona for name in language and, when r carries
// context, appends the delimited grounding block.
func (b *PromptBuilder) Build(name, language string, r Retrieval) string {
	tpl := personaTemplates[b.Language(language)]
	if strings.TrimSpace(name) == "" {
		name = tpl.defaultName
	}

	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(tpl.persona, "%NAME%", name))

	if text, ok := r.Context(); ok {
		sb.WriteString("\n\n")
		sb.WriteString(tpl.blockStart)
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n")
		sb.WriteString(tpl.blockEnd)
		sb.WriteString("\n\n")
		sb.WriteString(tpl.grounding)
	}
	return sb.String()
}

// Fallback is the reply sent when generation fails.
func (b *PromptBuilder) Fallback(language string) string {
	return personaTemplates[b.Language(language)].fallback
}

// GroundingDelimiters returns the markers that wrap the knowledge text.
func (b *PromptBuilder) GroundingDelimiters(language string) (start, end string) {
	tpl := personaTemplates[b.Language(language)]
	return tpl.blockStart, tpl.blockEnd
}
