package domain

// Market identifies the country a customer shops in together with its currency and display language.
type Market struct {
	Country  string
	Currency string
	Language string
}
