package twitter

// User is the subset of the user object the archiver needs
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Protected bool   `json:"protected"`
}

// APIError is one entry of the "errors" array the API returns alongside or instead of data
type APIError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Value  string `json:"value"`
}

type userResponse struct {
	Data   *User      `json:"data"`
	Errors []APIError `json:"errors"`
}

// Tweet is a timeline entry as delivered by the API
type Tweet struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	CreatedAt        string            `json:"created_at"`
	AuthorID         string            `json:"author_id"`
	Attachments      *Attachments      `json:"attachments,omitempty"`
	ReferencedTweets []ReferencedTweet `json:"referenced_tweets,omitempty"`
}

// Attachments lists the media keys of a tweet in display order
type Attachments struct {
	MediaKeys []string `json:"media_keys"`
}

// ReferencedTweet marks replies, quotes and retweets
type ReferencedTweet struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Media is an expanded attachment from includes.media
type Media struct {
	MediaKey        string    `json:"media_key"`
	Type            string    `json:"type"`
	URL             string    `json:"url,omitempty"`
	PreviewImageURL string    `json:"preview_image_url,omitempty"`
	Variants        []Variant `json:"variants,omitempty"`
}

// Variant is one encoding of a video or animated image
type Variant struct {
	BitRate     int    `json:"bit_rate,omitempty"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// Meta carries the pagination cursor of a timeline page
type Meta struct {
	ResultCount int    `json:"result_count"`
	NewestID    string `json:"newest_id,omitempty"`
	OldestID    string `json:"oldest_id,omitempty"`
	NextToken   string `json:"next_token,omitempty"`
}

type timelineResponse struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Media []Media `json:"media"`
	} `json:"includes"`
	Meta   Meta       `json:"meta"`
	Errors []APIError `json:"errors"`
}
