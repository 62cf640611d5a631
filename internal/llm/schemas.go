package llm

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ExtractionSchema couples the prompt for one extraction task with the JSON
// Schema its output must satisfy. A response that fails Validate is a
// permanent item failure: re-sending the same prompt cannot fix bad input.
type ExtractionSchema struct {
	Name       string
	Prompt     string
	JSONSchema string
}

// BuildPrompt appends the section text to the task prompt.
func (s ExtractionSchema) BuildPrompt(sectionText string) string {
	return fmt.Sprintf("%s\n\nTEXT:\n\"\"\"\n%s\n\"\"\"\n", s.Prompt, sectionText)
}

// Validate checks a model response against the schema.
func (s ExtractionSchema) Validate(payload string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(s.JSONSchema),
		gojsonschema.NewStringLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("schema validation of %s output: %w", s.Name, err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("%s output violates schema: %s", s.Name, first.String())
	}
	return nil
}

// GuidelineEntitySchema extracts recommendations, interventions, and
// conditions from one guideline section.
func GuidelineEntitySchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "GuidelineEntities",
		Prompt: `You are an entity extraction engine for clinical guideline documents.
Given one section of a guideline, extract all entities of the types below.

ENTITY TYPES (use exactly these values):
- recommendation : a normative statement telling clinicians what to do
- intervention   : a drug, procedure, test, or other treatment the guideline discusses
- condition      : a disease, disorder, or clinical state

Return a JSON object with exactly one key:
  "entities" : array of {"type": string, "text": string, "name": string, "strength": string}

Rules:
- For recommendations, "text" is the recommendation sentence COPIED VERBATIM and
  "strength" is "strong", "conditional", or "" when the section does not say.
- For interventions and conditions, "name" is the entity name normalised to lowercase;
  leave "text" empty.
- Only include entities clearly supported by the section.
- If there are none, return {"entities": []}.
- Do NOT include any text outside the JSON object.`,
		JSONSchema: `{
  "type": "object",
  "required": ["entities"],
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"enum": ["recommendation", "intervention", "condition"]},
          "text": {"type": "string"},
          "name": {"type": "string"},
          "strength": {"type": "string"}
        }
      }
    }
  }
}`,
	}
}

// StudySchema extracts cited studies from reference-like sections.
func StudySchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "Studies",
		Prompt: `You are a citation extraction engine for clinical guideline documents.
Given one section of a guideline, extract every cited study or trial.

Return a JSON object with exactly one key:
  "studies" : array of {"citation": string, "title": string, "year": string, "doi": string, "pmid": string}

Rules:
- "citation" is the full reference string COPIED VERBATIM.
- "doi" and "pmid" only when they literally appear in the text, otherwise "".
- Only include references clearly present in the section.
- If there are none, return {"studies": []}.
- Do NOT include any text outside the JSON object.`,
		JSONSchema: `{
  "type": "object",
  "required": ["studies"],
  "properties": {
    "studies": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["citation"],
        "properties": {
          "citation": {"type": "string"},
          "title": {"type": "string"},
          "year": {"type": "string"},
          "doi": {"type": "string"},
          "pmid": {"type": "string"}
        }
      }
    }
  }
}`,
	}
}
