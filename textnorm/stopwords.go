package textnorm

// germanStopwords is a fixed list of German function words. Kept as a
// literal so normalization never depends on files or the network.
var germanStopwords = []string{
	"aber", "alle", "allem", "allen", "aller", "alles", "als", "also", "am", "an",
	"ander", "andere", "anderem", "anderen", "anderer", "anderes", "auch", "auf", "aus",
	"bei", "bin", "bis", "bist", "da", "damit", "dann", "das", "dass", "dasselbe",
	"dazu", "dein", "deine", "dem", "den", "denn", "der", "derer", "des", "dich",
	"die", "dies", "diese", "dieselbe", "diesem", "diesen", "dieser", "dieses", "dir",
	"doch", "dort", "du", "durch", "ein", "eine", "einem", "einen", "einer", "eines",
	"einig", "einige", "er", "es", "etwas", "euch", "euer", "für", "gegen", "gewesen",
	"hab", "habe", "haben", "hat", "hatte", "hatten", "hier", "hin", "hinter", "ich",
	"ihm", "ihn", "ihnen", "ihr", "ihre", "im", "in", "indem", "ins", "ist", "jede",
	"jedem", "jeden", "jeder", "jedes", "jene", "jetzt", "kann", "kein", "keine",
	"können", "machen", "man", "manche", "mein", "meine", "mich", "mir", "mit", "muss",
	"musste", "nach", "nicht", "nichts", "noch", "nun", "nur", "ob", "oder", "ohne",
	"sehr", "sein", "seine", "selbst", "sich", "sie", "sind", "so", "solche", "soll",
	"sollte", "sondern", "sonst", "über", "um", "und", "uns", "unser", "unter", "viel",
	"vom", "von", "vor", "während", "war", "waren", "was", "weil", "welche", "welchem",
	"welchen", "welcher", "welches", "wenn", "werde", "werden", "wie", "wieder", "will",
	"wir", "wird", "wo", "wollen", "wollte", "würde", "würden", "zu", "zum", "zur",
	"zwar", "zwischen",
}
