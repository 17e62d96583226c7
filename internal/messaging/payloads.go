package messaging

// DailyStatusEvent - событие о заполнении дня, публикуемое в очередь для
// внешних потребителей (лента сообщества, нотификации и т.п.).
type DailyStatusEvent struct {
	OwnerID   string `json:"ownerId"`
	Day       int    `json:"day"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}
