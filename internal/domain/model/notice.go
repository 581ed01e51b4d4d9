package model

// Notice is the latest announcement scraped from one portal page.
type Notice struct {
	Page  string
	Title string
	URL   string
}
