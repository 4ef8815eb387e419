package recap

// Record is one persisted announcement. Records are never updated; announcing
// the same code twice yields two records with distinct IDs.
type Record struct {
	ID             string `json:"id"` // store-assigned, empty until appended
	Author         string `json:"author"`
	ProductionCode string `json:"productionCode"`
	Season         int    `json:"season"`
	Episode        int    `json:"episode"`
	Synopsis       string `json:"synopsis"`
	PostedAt       string `json:"postedAt"` // opaque source timestamp
	SourceUser     string `json:"sourceUser"`
	SourceChannel  string `json:"sourceChannel"`
}

// NewRecord builds the record for a parsed recap posted by author.
func NewRecord(r Recap, author, postedAt, user, channel string) Record {
	return Record{
		Author:         author,
		ProductionCode: r.Code,
		Season:         r.Season,
		Episode:        r.Episode,
		Synopsis:       r.Synopsis,
		PostedAt:       postedAt,
		SourceUser:     user,
		SourceChannel:  channel,
	}
}

// Line renders the record as a query reply: "<code> <synopsis> - by <author>".
func (r Record) Line() string {
	return r.ProductionCode + " " + r.Synopsis + " - by " + r.Author
}
