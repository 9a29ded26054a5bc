package analyzer

// Spanish stopwords filtered out of keyword ranking. A handful of English
// function words is included because received documents mix both.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// Spanish
		"a", "al", "algo", "algunas", "algunos", "ante", "antes", "como",
		"con", "contra", "cual", "cuando", "de", "del", "desde", "donde",
		"durante", "e", "el", "ella", "ellas", "ellos", "en", "entre",
		"era", "erais", "eran", "eres", "es", "esa", "esas", "ese", "eso",
		"esos", "esta", "estas", "este", "esto", "estos", "fue", "fueron",
		"ha", "haber", "habia", "había", "han", "hasta", "hay", "la",
		"las", "le", "les", "lo", "los", "mas", "más", "me", "mi", "mis",
		"mucho", "muchos", "muy", "nada", "ni", "no", "nos", "nosotros",
		"nuestra", "nuestro", "o", "os", "otra", "otras", "otro", "otros",
		"para", "pero", "poco", "por", "porque", "que", "qué", "quien",
		"quienes", "se", "sea", "segun", "según", "ser", "si", "sí",
		"sido", "sin", "sobre", "son", "su", "sus", "tal", "tambien",
		"también", "tanto", "te", "tiene", "tienen", "toda", "todas",
		"todo", "todos", "tras", "tu", "un", "una", "unas", "uno", "unos",
		"usted", "y", "ya", "yo",
		// English
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "in", "is", "it", "of", "on", "or", "that", "the", "this",
		"to", "was", "with",
	} {
		stopwords[w] = struct{}{}
	}
}

func isStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}
