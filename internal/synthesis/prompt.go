package synthesis

import (
	"fmt"
	"strings"

	"github.com/farmora/backend/internal/assembler"
	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/translate"
)

const systemPrompt = `You are Farmora, an AI agricultural assistant that helps farmers in India. Answer the farmer's question using the numbered facts provided.

Your responses must:
1. Be based on the provided facts; never invent prices, dates or forecasts
2. Be concise but informative, suitable for reading on a phone
3. Acknowledge when the facts do not fully answer the question and give what general guidance you can
4. Never mention tool errors or missing data sources by name
5. End with one line of the form "SOURCES: F1, F3" listing the facts you used, or "SOURCES: none"`

var intentInstructions = map[domain.IntentLabel]string{
	domain.LabelWeather:      "Summarize the forecast for the day asked about, then note anything that matters for field work (rain, heat, wind).",
	domain.LabelSoilHealth:   "Give practical soil and fertilizer guidance for the farmer's region and current conditions.",
	domain.LabelCropChoice:   "Recommend suitable crops for the region and season, weighing the weather and recent prices where given.",
	domain.LabelPestControl:  "Suggest safe, practical pest or disease control steps and say whether the weather allows spraying.",
	domain.LabelMarketPrices: "State the latest prices with market and date, mention the trend if known, and whether it looks like a good time to sell.",
	domain.LabelGeneral:      "Give a short, practical answer from general agricultural knowledge.",
}

const strictInstruction = `STRICT MODE: your previous answer did not address the question. Answer ONLY the question asked, mention the crop and place it names, and do not drift to other topics.`

const noDataInstruction = `No live data could be retrieved for this question. Say so briefly, then answer from general agricultural knowledge.`

const staleInstruction = `The facts below come from an earlier lookup and may be out of date. Say so when you quote them.`

func buildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "QUESTION:\n%s\n\n", strings.TrimSpace(req.Question))

	if len(req.Intent.Entities) > 0 {
		b.WriteString("CONTEXT:\n")
		for _, name := range []string{domain.EntityCrop, domain.EntityDistrict, domain.EntityState} {
			if v := req.Intent.Entities[name]; v != "" {
				fmt.Fprintf(&b, "- %s: %s\n", name, v)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("FACTS:\n")
	if len(req.Context.Facts) == 0 {
		b.WriteString("(none)\n")
	}
	for i, f := range req.Context.Facts {
		fmt.Fprintf(&b, "[F%d] %s\n", i+1, assembler.Line(f))
	}
	b.WriteString("\n")

	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString(intentInstructions[req.Intent.Label])
	b.WriteString("\n")
	if req.Context.Empty || req.Context.NoExternalData {
		b.WriteString(noDataInstruction + "\n")
	}
	if req.Context.Stale {
		b.WriteString(staleInstruction + "\n")
	}
	if req.Strict {
		b.WriteString(strictInstruction + "\n")
	}
	lang := translate.LanguageName(req.WorkingLanguage)
	fmt.Fprintf(&b, "Respond in %s.\n", lang)

	return b.String()
}
