package companion

// Language is one capture language offered on the call screen.
type Language struct {
	Code string
	Name string
}

// DefaultLanguageCode is the capture language used before the user picks one.
const DefaultLanguageCode = "en-US"

// SupportedLanguages lists the capture languages in display order.
func SupportedLanguages() []Language {
	return []Language{
		{Code: "en-US", Name: "English"},
		{Code: "es-ES", Name: "Spanish"},
		{Code: "fr-FR", Name: "French"},
		{Code: "de-DE", Name: "German"},
		{Code: "it-IT", Name: "Italian"},
		{Code: "pt-PT", Name: "Portuguese"},
		{Code: "hi-IN", Name: "Hindi"},
		{Code: "zh-CN", Name: "Chinese"},
		{Code: "ja-JP", Name: "Japanese"},
		{Code: "ko-KR", Name: "Korean"},
		{Code: "pl-PL", Name: "Polish"},
	}
}

// IsSupportedLanguage reports whether code is a selectable capture language.
func IsSupportedLanguage(code string) bool {
	for _, l := range SupportedLanguages() {
		if l.Code == code {
			return true
		}
	}
	return false
}
