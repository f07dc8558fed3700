package chat

import (
	"fmt"
	"strings"

	"github.com/infogenie/backend/internal/app/domain/chat"
)

// translationLanguages maps request language codes to display names used in
// the translation prompt. Unknown codes pass through verbatim.
var translationLanguages = map[string]string{
	"zh-CN": "Simplified Chinese",
	"zh-TW": "Traditional Chinese",
	"en":    "English",
	"ja":    "Japanese",
	"ko":    "Korean",
	"fr":    "French",
	"de":    "German",
	"es":    "Spanish",
	"it":    "Italian",
	"pt":    "Portuguese",
	"ru":    "Russian",
	"ar":    "Arabic",
	"hi":    "Hindi",
	"th":    "Thai",
	"vi":    "Vietnamese",
}

// TranslationLanguageName resolves a language code to its prompt name.
func TranslationLanguageName(code string) string {
	if name, ok := translationLanguages[code]; ok {
		return name
	}
	return code
}

// expressionStyles maps expression-maker style keys to prompt phrasing.
var expressionStyles = map[string]string{
	"mixed":   "a mix of emoji and kaomoji",
	"emoji":   "emoji symbols only",
	"kaomoji": "kaomoji (Japanese text faces) only",
	"cute":    "cute, playful symbols",
	"cool":    "cool, edgy symbols",
}

// defaultKinshipDialects are queried when the caller does not name any.
var defaultKinshipDialects = []string{
	"Cantonese", "Hokkien", "Shanghainese", "Sichuanese", "Northeastern Mandarin", "Hakka",
}

func userMessage(content string) []chat.Message {
	return []chat.Message{{Role: "user", Content: content}}
}

// NameAnalysisPrompt builds the onomastics analysis conversation.
func NameAnalysisPrompt(name string) []chat.Message {
	return userMessage(fmt.Sprintf(`You are an expert in onomastics and linguistics. Analyze the given personal name thoroughly. Output the final analysis directly, without any reasoning traces or <think> tags.

Name: %s

Output strictly in this format:

[Rarity Score]
Score: X%%
Comment: how common the surname and given name are

[Phonetic Score]
Score: X%%
Comment: tonal balance, fluency, and harmony of the pronunciation

[Meaning]
A detailed reading of the name covering:
1. Historical origin and cultural background of the surname
2. Meaning and symbolism of each character of the given name
3. The combined meaning of the full name
4. Parental hopes or cultural themes the name may reflect
5. Connections to tradition, poetry, or classical references

Rules:
1. Scores are integers between 1 and 100 and should clearly differ between names
2. Keep the analysis professional, objective, and grounded
3. The meaning section should run at least 150 words
4. Follow the format exactly, with no reasoning traces or extra sections
5. Call out rare characters or unusual names explicitly
6. Output the final result only`, name))
}

// VariableNamingPrompt builds the identifier suggestion conversation. The
// model is asked for strict JSON so the response feeds ExtractJSON.
func VariableNamingPrompt(description string) []chat.Message {
	return userMessage(fmt.Sprintf(`You are a professional variable naming assistant. Generate suitable identifiers for the following description:

Description: %s

Provide 3 suggestions for each convention:
1. camelCase
2. PascalCase
3. snake_case
4. kebab-case
5. CONSTANT_CASE

Rules:
- Names must accurately reflect the purpose
- Follow each convention strictly
- Avoid abbreviations unless universally understood
- Keep names concise yet descriptive
- Favor readability and maintainability

Return in this JSON format:
{
  "suggestions": {
    "camelCase": [{"name": "...", "description": "..."}],
    "PascalCase": [{"name": "...", "description": "..."}],
    "snake_case": [{"name": "...", "description": "..."}],
    "kebab-case": [{"name": "...", "description": "..."}],
    "CONSTANT_CASE": [{"name": "...", "description": "..."}]
  }
}

Return only the JSON, with no other text.`, description))
}

// PoetryPrompt builds the poem composition conversation.
func PoetryPrompt(theme, style, mood string) []chat.Message {
	if mood == "" {
		mood = "poet's choice"
	}
	return userMessage(fmt.Sprintf(`You are a gifted poet. Compose a poem to the following brief.

Theme: %s
Style: %s
Mood: %s

Requirements:
1. Stay on theme with genuine feeling
2. Graceful language and evocative imagery
3. Honor the requested style
4. Moderate length, pleasant to read aloud
5. For classical forms, mind the meter and rhyme

Output the poem only, with no commentary.`, theme, style, mood))
}

// TranslationPrompt builds the translation conversation. Source language is
// detected by the model, not supplied by the caller.
func TranslationPrompt(sourceText, targetLanguage string) []chat.Message {
	name := TranslationLanguageName(targetLanguage)
	return userMessage(fmt.Sprintf(`You are a professional translator fluent in many languages. Translate the following text into %s.

Source text: %s

Requirements:
1. Faithful: convey the original meaning without omission, addition, or distortion
2. Fluent: read naturally in the target language
3. Elegant: match the register and style of the original

Notes:
- Detect the source language automatically
- Preserve tone, emotional color, and form
- Translate terminology precisely
- Localize culture-bound expressions while keeping their meaning
- For single words or phrases, give the common senses
- For sentences, ensure correct grammar and natural phrasing

Return in this JSON format:
{
  "detected_language": "name of the detected source language",
  "target_language": "%s",
  "translation": "the translation",
  "alternative_translations": ["alt 1", "alt 2", "alt 3"],
  "explanation": "usage and context notes",
  "pronunciation": "pronunciation guidance where applicable"
}

Return only the JSON, with no other text.`, name, sourceText, name))
}

// ClassicalConversionPrompt builds the modern-to-classical Chinese rewrite
// conversation.
func ClassicalConversionPrompt(modernText, style, articleType string) []chat.Message {
	return userMessage(fmt.Sprintf(`You are a master of classical Chinese prose. Convert the following modern Chinese text into classical Chinese.

Modern text: %s

Conversion requirements:
1. Style: %s
2. Form: %s
3. Preserve the core meaning and emotional color
4. Use proper classical grammar and vocabulary
5. Attend to cadence and refinement
6. Adjust diction and sentence shape to the chosen style

Return in this JSON format:
{
  "classical_text": "the converted classical text",
  "translation_notes": "word choices and grammatical features",
  "style_analysis": "how the chosen style is realized",
  "difficulty_level": "beginner, intermediate, or advanced",
  "key_phrases": [
    {"modern": "modern phrase", "classical": "classical phrase", "explanation": "note"}
  ],
  "cultural_elements": "allusions and imagery involved"
}

Return only the JSON, with no other text.`, modernText, style, articleType))
}

// ExpressionMakerPrompt builds the emoji and kaomoji suggestion conversation.
func ExpressionMakerPrompt(text, style string) []chat.Message {
	desc, ok := expressionStyles[style]
	if !ok {
		desc = expressionStyles["mixed"]
	}
	return userMessage(fmt.Sprintf(`You are an expert in expressive symbols. Generate fitting expressions for the following text:

Text: %s
Style: %s

Requirements:
1. Capture the emotion and meaning of the text
2. Match the requested style
3. Offer varied options
4. Include usage scenarios

Generate under these categories:
1. Emoji (Unicode symbols)
2. Kaomoji (ASCII text faces)
3. Combinations (several symbols together)

Give 5 options per category, each with the symbol itself, a scenario description, and an intensity (mild, medium, or strong).

Return in this JSON format:
{
  "expressions": {
    "emoji": [{"symbol": "😊", "description": "...", "intensity": "medium", "usage": "..."}],
    "kaomoji": [{"symbol": "(^_^)", "description": "...", "intensity": "mild", "usage": "..."}],
    "combination": [{"symbol": "🎉✨", "description": "...", "intensity": "strong", "usage": "..."}]
  },
  "summary": {
    "emotion_analysis": "emotional read of the input",
    "recommended_usage": "where to use these",
    "style_notes": "style remarks"
  }
}

Return only the JSON, with no other text.`, text, desc))
}

// LinuxCommandPrompt builds the shell command generation conversation.
func LinuxCommandPrompt(taskDescription, difficultyLevel string) []chat.Message {
	return userMessage(fmt.Sprintf(`You are a Linux systems expert. Generate shell commands for the described task.

Task: %s
User level: %s

Requirements:
1. Commands must be correct and standard
2. Match complexity to the user level
3. Offer multiple approaches where they exist
4. Include safety warnings where relevant
5. Explain each command and its flags

User levels:
- beginner: basic commands with thorough explanation
- intermediate: common commands and options
- advanced: efficient commands and advanced usage

Return in this JSON format:
{
  "commands": [
    {
      "command": "the command",
      "description": "what it does",
      "safety_level": "safe/caution/dangerous",
      "explanation": "breakdown of the parts",
      "example_output": "expected output",
      "alternatives": ["alt 1", "alt 2"]
    }
  ],
  "safety_warnings": ["warning 1"],
  "prerequisites": ["prerequisite 1"],
  "related_concepts": ["concept 1"]
}

Return only the JSON, with no other text.`, taskDescription, difficultyLevel))
}

// MarkdownFormattingPrompt builds the article layout conversation. The model
// returns plain Markdown rather than JSON.
func MarkdownFormattingPrompt(articleText, emojiStyle string) []chat.Message {
	return userMessage(fmt.Sprintf(`You are a professional document layout assistant. Reformat the full text below as standard Markdown, restructuring its presentation without changing any of the original content. Follow these rules strictly:

1) Keep all original content; never rewrite, cut, or add material.
2) Use sensible Markdown structure (headings, sections, paragraphs, lists, quotes, tables where warranted, code blocks only if the original contains code).
3) Sprinkle a measured amount of emoji for readability (%s) on headings, key sentences, and list items; never overdo it.
4) Preserve the language and tone; change only the layout.
5) Output plain Markdown text with no JSON, HTML, XML, commentary, or outer code fence.

For longer texts, open with a short table of contents.

Original text:
%s`, emojiStyle, articleText))
}

// KinshipPrompt builds the Chinese kinship title conversation. The relation
// chain joins steps with the possessive particle, e.g. "mother's father".
func KinshipPrompt(relationChain string, dialects []string) []chat.Message {
	if len(dialects) == 0 {
		dialects = defaultKinshipDialects
	}
	return userMessage(fmt.Sprintf(`You are an expert in Chinese kinship terminology. Parse the relation chain below and produce the final kinship title. Chains link steps with the possessive particle, such as "mother's father" or "father's elder sister's son".

Rules:
1) Give the most common, standard Mandarin title as used in mainland China.
2) Also give the corresponding titles in these dialects: %s.
3) If regional or gender ambiguity exists, note it in notes but still pick the most common title.
4) No reasoning traces; output JSON only.

Output strictly in this JSON structure:
{
  "mandarin_title": "standard Mandarin title",
  "dialect_titles": {
    "<dialect>": {"title": "...", "romanization": "...", "notes": "optional"}
  },
  "notes": "overall remarks (regional variation, generation direction, paternal vs maternal)"
}

Relation chain:
%s`, strings.Join(dialects, ", "), relationChain))
}
