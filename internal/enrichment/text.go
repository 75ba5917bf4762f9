package enrichment

import (
	"strings"

	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

// maxListItems bounds how many list entries feed into persona text.
const maxListItems = 6

// combinedText assembles the labelled-section text that feeds the combined
// embedding. Empty sections are skipped; a bare name line is the floor.
func combinedText(doc store.MetadataDoc) string {
	var b strings.Builder
	b.WriteString("Subreddit: " + doc.SubredditName)

	section := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		b.WriteString("\n" + label + ": " + strings.TrimSpace(value))
	}

	section("Title", doc.Title)
	section("Description", doc.PublicDescription)
	section("About", doc.Description)
	section("Category", doc.AdvertiserCategory)
	section("Rules", doc.RulesText)
	section("Posting guidelines", doc.GuidelinesText)
	if len(doc.SamplePostsTitles) > 0 {
		section("Sample posts", strings.Join(doc.SamplePostsTitles, "\n"))
	}
	return b.String()
}

// personaText front-loads the audience profile so the persona embedding
// weights who the community is over what it posts.
func personaText(doc store.MetadataDoc, enrichment *store.LLMEnrichment) string {
	var b strings.Builder
	b.WriteString("Subreddit: " + doc.SubredditName)

	if enrichment != nil {
		if enrichment.AudienceProfile != "" {
			b.WriteString("\nAudience: " + enrichment.AudienceProfile)
		}
		list := func(label string, items []string) {
			if len(items) == 0 {
				return
			}
			if len(items) > maxListItems {
				items = items[:maxListItems]
			}
			b.WriteString("\n" + label + ": " + strings.Join(items, ", "))
		}
		list("Audience types", enrichment.AudienceTypes)
		list("User intents", enrichment.UserIntents)
		list("Pain points", enrichment.PainPoints)
		list("Content themes", enrichment.ContentThemes)
	}

	if doc.Title != "" {
		b.WriteString("\nTitle: " + doc.Title)
	}
	if doc.PublicDescription != "" {
		b.WriteString("\nDescription: " + doc.PublicDescription)
	}
	return b.String()
}

const profileSystemPrompt = `You analyze Reddit communities. Given a subreddit's metadata, respond with a JSON object with exactly these keys:
"audience_profile": one paragraph describing who participates and why,
"audience_types": array of short audience descriptors,
"user_intents": array of reasons people visit,
"pain_points": array of problems the audience has,
"content_themes": array of recurring content topics.
Arrays hold 3 to 6 short strings each.`
