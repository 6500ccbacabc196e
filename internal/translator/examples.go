package translator

import "encoding/json"

// languageExamples maps ISO language codes to a fixed exemplar sentence in
// that language. The exemplars are embedded in a synthesized example response
// sent with every provider call; their only job is to pin the output schema
// (JSON object keyed by exactly the requested codes), so a short everyday
// sentence is enough.
var languageExamples = map[string]string{
	"af": "Hallo, hoe gaan dit vandag met jou?",
	"ar": "مرحبا، كيف حالك اليوم؟",
	"az": "Salam, bu gün necəsən?",
	"bg": "Здравей, как си днес?",
	"bn": "হ্যালো, আজ আপনি কেমন আছেন?",
	"bs": "Zdravo, kako si danas?",
	"ca": "Hola, com estàs avui?",
	"cs": "Ahoj, jak se dnes máš?",
	"da": "Hej, hvordan har du det i dag?",
	"de": "Hallo, wie geht es dir heute?",
	"el": "Γεια σου, πώς είσαι σήμερα;",
	"en": "Hello, how are you today?",
	"es": "Hola, ¿cómo estás hoy?",
	"et": "Tere, kuidas sul täna läheb?",
	"fa": "سلام، امروز حالت چطور است؟",
	"fi": "Hei, mitä sinulle kuuluu tänään?",
	"fr": "Bonjour, comment allez-vous aujourd'hui ?",
	"he": "שלום, מה שלומך היום?",
	"hi": "नमस्ते, आज आप कैसे हैं?",
	"hr": "Bok, kako si danas?",
	"hu": "Szia, hogy vagy ma?",
	"id": "Halo, bagaimana kabarmu hari ini?",
	"it": "Ciao, come stai oggi?",
	"ja": "こんにちは、今日の調子はどうですか？",
	"kk": "Сәлем, бүгін қалайсың?",
	"ko": "안녕하세요, 오늘 어떻게 지내세요?",
	"lt": "Labas, kaip šiandien sekasi?",
	"lv": "Sveiki, kā tev šodien klājas?",
	"mk": "Здраво, како си денес?",
	"ms": "Helo, apa khabar hari ini?",
	"nl": "Hallo, hoe gaat het vandaag met je?",
	"no": "Hei, hvordan har du det i dag?",
	"pl": "Cześć, jak się dzisiaj masz?",
	"ps": "سلام، نن څنګه یې؟",
	"pt": "Olá, como você está hoje?",
	"ro": "Bună, ce mai faci astăzi?",
	"ru": "Привет, как у тебя сегодня дела?",
	"sd": "سلام، اڄ توهان ڪيئن آهيو؟",
	"sk": "Ahoj, ako sa dnes máš?",
	"sl": "Živjo, kako si danes?",
	"sq": "Përshëndetje, si je sot?",
	"sr": "Здраво, како си данас?",
	"sv": "Hej, hur mår du idag?",
	"sw": "Habari, hali yako ikoje leo?",
	"ta": "வணக்கம், இன்று எப்படி இருக்கிறீர்கள்?",
	"th": "สวัสดี วันนี้คุณเป็นอย่างไรบ้าง",
	"tr": "Merhaba, bugün nasılsın?",
	"uk": "Привіт, як ти сьогодні?",
	"ur": "السلام علیکم، آج آپ کیسے ہیں؟",
	"uz": "Salom, bugun qalaysiz?",
	"vi": "Xin chào, hôm nay bạn thế nào?",
	"zh": "你好，你今天怎么样？",
}

// exampleResponse builds the schema-pinning example document for one chunk of
// target languages. Codes without an exemplar map to an empty string; the
// structure is what matters.
func exampleResponse(langs []string) string {
	translations := make(map[string]string, len(langs))
	for _, lang := range langs {
		translations[lang] = languageExamples[lang]
	}
	doc := map[string]map[string]string{"translate": translations}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		// map[string]string cannot fail to marshal.
		return `{"translate":{}}`
	}
	return string(out)
}
