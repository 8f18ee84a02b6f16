package analysis

import "regexp"

// topicOrder fixes tie-breaking when two topics score equally.
var topicOrder = []string{
	"programming", "math", "science", "writing", "business", "health", "gaming", "music",
}

var topicKeywords = map[string][]string{
	"programming": {
		"python", "javascript", "java", "code", "function", "class", "variable",
		"error", "bug", "debug", "api", "database", "sql", "html", "css", "react",
		"node", "git", "compile", "runtime", "syntax", "loop", "array", "list",
		"dict", "dictionary", "string", "int", "float", "bool", "import", "module",
		"package", "library", "framework", "server", "client", "http", "json",
		"typescript", "rust", "golang", "c++", "cpp", "ruby", "php", "swift",
		"kotlin", "flutter", "django", "flask", "express", "docker", "kubernetes",
		"aws", "azure", "algorithm", "data structure", "recursion", "regex",
		"exception", "traceback", "stacktrace", "npm", "pip", "cargo",
		"frontend", "backend", "fullstack", "devops", "ci/cd", "deploy",
	},
	"math": {
		"equation", "solve", "calculate", "number", "formula", "algebra",
		"calculus", "derivative", "integral", "matrix", "vector", "probability",
		"statistics", "geometry", "trigonometry", "logarithm", "exponent",
		"fraction", "percentage", "graph", "plot", "theorem", "proof",
		"polynomial", "quadratic", "linear", "coefficient", "factorial",
	},
	"science": {
		"experiment", "theory", "hypothesis", "physics", "chemistry", "biology",
		"molecule", "atom", "cell", "dna", "evolution", "gravity", "energy",
		"force", "mass", "velocity", "acceleration", "quantum", "relativity",
		"organism", "ecosystem", "climate", "temperature", "reaction",
	},
	"writing": {
		"essay", "paragraph", "sentence", "grammar", "writing", "story",
		"poem", "article", "blog", "draft", "edit", "proofread", "tone",
		"narrative", "character", "plot", "dialogue", "summary", "outline",
		"thesis", "conclusion", "introduction", "creative writing",
	},
	"business": {
		"marketing", "sales", "revenue", "profit", "startup", "investor",
		"strategy", "management", "customer", "product", "brand", "budget",
		"roi", "kpi", "meeting", "presentation", "proposal", "pitch",
		"linkedin", "resume", "interview", "career", "salary", "negotiation",
	},
	"health": {
		"health", "exercise", "diet", "nutrition", "calories", "workout",
		"sleep", "stress", "mental health", "anxiety", "depression", "therapy",
		"medication", "symptom", "diagnosis", "doctor", "hospital", "fitness",
	},
	"gaming": {
		"game", "gaming", "fps", "rpg", "mmorpg", "steam", "playstation",
		"xbox", "nintendo", "fortnite", "minecraft", "valorant", "league",
		"gta", "multiplayer", "singleplayer", "level", "boss", "quest",
	},
	"music": {
		"song", "music", "album", "artist", "band", "guitar", "piano",
		"drums", "vocals", "lyrics", "melody", "chord", "beat", "genre",
		"rap", "rock", "pop", "jazz", "classical", "playlist", "spotify",
	},
}

var stopWords = map[string]bool{
	"i": true, "me": true, "my": true, "we": true, "our": true, "you": true,
	"your": true, "he": true, "she": true, "it": true, "they": true,
	"them": true, "this": true, "that": true, "these": true, "those": true,
	"is": true, "am": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true,
	"can": true, "shall": true, "must": true,
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"if": true, "then": true, "else": true, "when": true,
	"where": true, "what": true, "which": true, "who": true, "whom": true,
	"how": true, "why": true, "not": true, "no": true,
	"yes": true, "so": true, "than": true, "too": true, "very": true,
	"just": true, "also": true, "now": true, "here": true,
	"there": true, "about": true, "above": true, "after": true, "again": true,
	"all": true, "any": true, "because": true,
	"before": true, "between": true, "both": true, "by": true, "down": true,
	"during": true, "each": true, "few": true,
	"for": true, "from": true, "further": true, "get": true, "got": true,
	"go": true, "going": true, "into": true, "its": true,
	"let": true, "like": true, "make": true, "more": true, "most": true,
	"much": true, "need": true, "of": true, "off": true,
	"on": true, "once": true, "only": true, "other": true, "out": true,
	"over": true, "own": true, "same": true, "some": true,
	"still": true, "such": true, "take": true, "tell": true, "to": true,
	"through": true, "under": true, "until": true,
	"up": true, "us": true, "use": true, "want": true, "way": true,
	"well": true, "with": true, "ok": true, "okay": true,
	"yeah": true, "yep": true, "nope": true, "sure": true, "thanks": true,
	"thank": true, "please": true, "hey": true,
	"hi": true, "hello": true, "bye": true, "see": true, "know": true,
	"think": true, "say": true, "said": true, "really": true,
	"thing": true, "things": true, "something": true, "anything": true,
	"everything": true, "nothing": true,
	"one": true, "two": true, "first": true, "new": true, "good": true,
	"great": true, "right": true, "even": true,
	"back": true, "come": true, "came": true, "give": true, "gave": true,
	"look": true, "try": true, "work": true,
}

var wordPattern = regexp.MustCompile(`[a-z][a-z0-9+#/.]*`)

var referencePronouns = regexp.MustCompile(`\b(it|that|this|those|these|them)\b`)

// intentChecks run in order; the first match on the latest user message
// wins.
var intentChecks = []struct {
	intent   string
	patterns []*regexp.Regexp
}{
	{"asking_question", []*regexp.Regexp{
		regexp.MustCompile(`\?$`),
		regexp.MustCompile(`(?i)^(what|how|why|when|where|who|which|can|could|would|is|are|do|does)\b`),
	}},
	{"requesting_help", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(help|assist|fix|solve|explain|show me|teach|guide)\b`),
	}},
	{"debugging", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(error|bug|issue|problem|broken|doesn'?t work|not working|crash|fail)\b`),
		regexp.MustCompile(`(?i)\b(traceback|exception|stacktrace|undefined|null|NaN)\b`),
	}},
	{"continuing", []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(and|also|another|next|then|now|what about|how about)\b`),
		regexp.MustCompile(`(?i)^(go on|continue|more|keep going|elaborate)\b`),
	}},
	{"casual", []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(hey|hi|hello|sup|yo|what'?s up|how are you|lol|haha|lmao)\b`),
	}},
	{"brainstorming", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(what if|idea|suggest|recommend|alternative|option|brainstorm|could we)\b`),
	}},
	{"learning", []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(explain|understand|learn|teach|tutorial|example|how does|what does|what is)\b`),
	}},
}

var codeMarkers = regexp.MustCompile("(?i)```|traceback|error:|exception|stacktrace")

var learningMarkers = regexp.MustCompile(
	`(?i)\b(explain|understand|learn|how does|what is|what does|teach)\b`)

var brainstormMarkers = regexp.MustCompile(
	`(?i)\b(what if|idea|suggest|brainstorm|could we|alternative)\b`)
