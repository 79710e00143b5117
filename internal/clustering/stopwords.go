package clustering

var stopwords = buildStopwords(
	// English
	"a", "about", "after", "again", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "he", "her", "here", "hers", "him", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more", "most", "my",
	"no", "nor", "not", "now", "of", "off", "on", "once", "only", "or", "other", "our", "ours",
	"out", "over", "own", "same", "she", "should", "so", "some", "such", "than", "that", "the",
	"their", "theirs", "them", "then", "there", "these", "they", "this", "those", "through", "to",
	"too", "under", "until", "up", "very", "was", "we", "were", "what", "when", "where", "which",
	"while", "who", "whom", "why", "will", "with", "would", "you", "your", "yours",
	// French, accents already folded
	"a", "afin", "ai", "aie", "ainsi", "alors", "au", "aucun", "aussi", "autre", "aux", "avec",
	"avoir", "bon", "car", "ce", "ceci", "cela", "celle", "celles", "celui", "ces", "cet", "cette",
	"ceux", "chaque", "ci", "comme", "comment", "dans", "de", "des", "deux", "doit", "donc", "dont",
	"du", "elle", "elles", "en", "encore", "est", "et", "etaient", "etait", "ete", "etre", "eu",
	"fait", "faire", "il", "ils", "je", "la", "le", "les", "leur", "leurs", "lui", "ma", "mais",
	"me", "meme", "mes", "moi", "mon", "ne", "ni", "nos", "notre", "nous", "on", "ont", "ou",
	"par", "pas", "peu", "peut", "plus", "pour", "pourquoi", "qu", "quand", "que", "quel", "quelle",
	"qui", "sa", "sans", "se", "ses", "si", "son", "sont", "sous", "sur", "ta", "te", "tes", "toi",
	"ton", "tous", "tout", "tres", "tu", "un", "une", "vos", "votre", "vous", "y",
)

func buildStopwords(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func isStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
