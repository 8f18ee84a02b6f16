package safety

import "regexp"

// Fixed user-facing replies. These are the only texts the filter ever
// substitutes for a whole message.
const (
	SafeFallback = "I'm sorry, but I can't provide that information. " +
		"How can I help you with something else?"

	InputBlockedMessage = "I can't process that request. If you have a legitimate question, " +
		"please rephrase it and I'll be happy to help."

	ContentBlockedMessage = "I'm not able to help with that kind of request. " +
		"Please ask me something constructive and I'll do my best to assist you."
)

// Input length caps by kind. Over-length input is truncated silently.
var maxInputLengths = map[string]int{
	"message":      4000,
	"search_query": 200,
	"command_arg":  500,
}

// --- Output filtering: internal architecture leakage ---

var internalModelNames = regexp.MustCompile(
	`(?i)\b(ollama|llama[\s-]?3(\.\d)?|deepseek[\s-]?r1|qwen[\s-]?\d*[\s-]?coder|` +
		`mistral|codellama|phi[\s-]?\d|gemma[\s-]?\d|vicuna|wizardlm)\b`)

var internalFrameworks = regexp.MustCompile(
	`(?i)\b(discordgo|telego|signal[\s-]?cli|gorilla/websocket|mcp[\s-]?go|fsnotify|` +
		`think[\s_-]?parser|context[\s_-]?analyzer|guardrails?\.go)\b`)

var internalAPIPaths = regexp.MustCompile(
	`(?i)(/api/(generate|chat|tags|embeddings)|stream_?generate|stream_?chat|` +
		`send_?stream_?chunk|publish_?outbound|consume_?inbound|build_?prompt)\b`)

var infraURLs = regexp.MustCompile(
	`(?i)(https?://)?(localhost|127\.0\.0\.1|0\.0\.0\.0)(:\d+)?(/\S*)?`)

var filePaths = regexp.MustCompile(
	`([A-Za-z]:\\[^\s"'<>|]+\.(go|py)|/[^\s"'<>|]+\.(go|py))\b`)

var envVars = regexp.MustCompile(
	`\b(ROTBOT_[A-Z_]+|OLLAMA_[A-Z_]+|DISCORD_BOT_TOKEN|TELEGRAM_BOT_TOKEN|` +
		`SIGNAL_PHONE_NUMBER|SIGNAL_CLI_HOST|SIGNAL_CLI_PORT|DEFAULT_MODEL)\b`)

var dotenvRef = regexp.MustCompile(`\b\.env\b`)

// --- Output filtering: PII and secrets ---

var ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

var creditCardPattern = regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)

var apiKeyPattern = regexp.MustCompile(
	`(?i)(api[_-]?key|token|secret|password|authorization)\s*[:=]\s*["']?[A-Za-z0-9_\-]{20,}["']?`)

var jwtPattern = regexp.MustCompile(
	`\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)

// --- Code span detection: matches inside code are left alone ---

var codeBlockPattern = regexp.MustCompile("```[\\s\\S]*?```")
var inlineCodePattern = regexp.MustCompile("`[^`]+`")

// selfRefPattern marks text where the bot is talking about itself;
// internal model/framework names are only redacted in that context.
var selfRefPattern = regexp.MustCompile(
	`(?i)\b(I\s+am|I'm|I\s+use|I\s+run|running\s+on|powered\s+by|built\s+with|` +
		`my\s+model|my\s+architecture|my\s+system|my\s+backend|` +
		`I\s+was\s+built|I\s+was\s+trained|I\s+was\s+created)\b`)

// --- Input filtering: prompt injection families ---

var injectionPatterns = map[string][]*regexp.Regexp{
	"ignore_instructions": {
		regexp.MustCompile(
			`(?i)\b(ignore|disregard|forget|skip|drop)\s+(all\s+)?(previous|prior|above|earlier|system|initial)\s+` +
				`(instructions?|prompts?|rules?|commands?|guidelines?|constraints?|context)\b`),
		regexp.MustCompile(
			`(?i)\b(override|bypass|disable|turn\s+off|remove|delete)\s+(the\s+)?(system|safety|guardrails?|rules?|filters?|restrictions?)\b`),
	},
	"role_manipulation": {
		regexp.MustCompile(
			`(?i)\b(you\s+are\s+now|from\s+now\s+on\s+you\s+are|act\s+as\s+if\s+you\s+are|` +
				`pretend\s+(you\s+are|to\s+be)|simulate\s+being|roleplay\s+as|` +
				`switch\s+to\s+.{0,20}mode|enter\s+.{0,20}mode)\b`),
		regexp.MustCompile(`(?i)\bDAN\s+mode\b`),
		regexp.MustCompile(`(?i)\b(jailbreak|jailbroken|unrestricted\s+mode|unfiltered\s+mode|developer\s+mode)\b`),
	},
	"system_probing": {
		regexp.MustCompile(
			`(?i)\b(repeat|print|show|reveal|display|output|dump|list|give\s+me|tell\s+me)\s+` +
				`(your|the)\s+(system\s+)?(instructions?|system\s*prompt|rules?|configuration|guidelines|directives)\b`),
		regexp.MustCompile(
			`(?i)\b(what\s+(are\s+you|is\s+your)\s+(made\s+of|built\s+with|running\s+on|programmed\s+(in|with)|` +
				`architecture|tech\s*stack|backend|infrastructure|source\s*code|framework))\b`),
		regexp.MustCompile(
			`(?i)\b(show|tell|reveal|give)\s+me\s+(your\s+)?(source\s*code|code\s*base|system\s*prompt|internal)\b`),
	},
	"encoded_evasion": {
		// Long base64-ish runs. The Python original anchors the run with
		// lookarounds, which RE2 lacks; for detection the bare run is
		// equivalent (any 60+ run implies a 60+ maximal run).
		regexp.MustCompile(`[A-Za-z0-9+/]{60,}={0,2}`),
		regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){4,}`),
		regexp.MustCompile(`(&#\d{2,4};){4,}`),
	},
}

// safeInputContexts suppress injection detection for educational phrasing
// ("how to ignore files in git").
var safeInputContexts = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(in\s+)?(git|github|docker|kubernetes|linux|bash|sql|css|html)\b`),
	regexp.MustCompile(`(?i)\b(how\s+to|tutorial|example|learn|explain)\b.*\b(ignore|disregard|bypass|override)\b`),
}

// injectionFamilyOrder fixes scan order so detections are deterministic.
var injectionFamilyOrder = []string{
	"ignore_instructions", "role_manipulation", "system_probing", "encoded_evasion",
}

var highThreatFamilies = map[string]bool{"ignore_instructions": true, "role_manipulation": true}
var mediumThreatFamilies = map[string]bool{"system_probing": true, "encoded_evasion": true}

// --- Content safety: unconditional block categories ---

var contentSafetyPatterns = map[string][]*regexp.Regexp{
	"violence_weapons": {
		regexp.MustCompile(
			`(?i)\b(how\s+to|ways?\s+to|methods?\s+(to|for)|guide\s+(to|for)|steps?\s+to|instructions?\s+(to|for))\s+` +
				`(make|build|create|construct|assemble|manufacture)\s+(a\s+)?(bomb|explosive|weapon|firearm|poison|toxin)\b`),
		regexp.MustCompile(
			`(?i)\b(how\s+to|ways?\s+to|methods?\s+(to|for))\s+` +
				`(kill|murder|assassinate|harm|injure|torture)\s+(a\s+)?(person|someone|people|human)\b`),
	},
	"self_harm": {
		regexp.MustCompile(
			`(?i)\b(how\s+to|ways?\s+to|methods?\s+(to|for)|best\s+way\s+to)\s+` +
				`(commit\s+suicide|kill\s+(myself|yourself|oneself)|end\s+(my|your|one's)\s+life)\b`),
		regexp.MustCompile(
			`(?i)\b(suicide|self[\s-]?harm|cutting|overdose)\s+(method|technique|guide|tutorial|instruction)\b`),
	},
	"csam": {
		regexp.MustCompile(
			`(?i)\b(child|minor|underage|kid|infant|toddler|boy|girl)\b.{0,30}` +
				`\b(sexual|nude|naked|porn|explicit|erotic|intimate)\b`),
	},
	"illegal_activity": {
		regexp.MustCompile(
			`(?i)\b(how\s+to|guide\s+to|tutorial\s+(on|for))\s+` +
				`(hack\s+into|crack|breach|exploit)\s+(a\s+)?(bank|account|server|system|network|database)\b`),
		regexp.MustCompile(
			`(?i)\b(how\s+to|where\s+to)\s+(buy|sell|get|obtain|order|purchase)\s+` +
				`(cocaine|heroin|meth|fentanyl|drugs|stolen\s+(credit\s+)?cards?|weapons?|firearms?)\b`),
	},
	"hate_speech": {
		regexp.MustCompile(
			`(?i)\b(kill|exterminate|eliminate|eradicate|genocide)\s+all\s+` +
				`(jews?|muslims?|christians?|blacks?|whites?|asians?|gays?|lesbians?|trans|women|men)\b`),
	},
}

var contentCategoryOrder = []string{
	"violence_weapons", "self_harm", "csam", "illegal_activity", "hate_speech",
}

var criticalCategories = map[string]bool{"csam": true}
var highCategories = map[string]bool{"violence_weapons": true, "self_harm": true}

// --- Log sanitization ---

var logRedactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},
	{regexp.MustCompile(`\b[A-Za-z0-9_\-]{30,}\b`), "[TOKEN]"},
	{regexp.MustCompile(`\+?\d{10,}`), "[PHONE]"},
	{regexp.MustCompile(`https?://\S+`), "[URL]"},
}
