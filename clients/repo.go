package clients

// Repo persists registered clients. Get returns errors.ErrNotFound for unknown ids.
type Repo interface {
	Upsert(client *Client) error
	Delete(clientID string) error
	Get(clientID string) (*Client, error)
	List(offset, limit int) ([]*Client, error)
}
