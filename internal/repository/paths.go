package repository

import "trove/internal/docstore"

const (
	usersPath              = "users"
	customTemplatesPath    = "customTemplates"
	subscriptionEventsPath = "subscriptionEvents"
)

func collectionsPath(userID string) string {
	return docstore.Join(usersPath, userID, "collections")
}

func subCollectionsPath(userID, collectionID string) string {
	return docstore.Join(collectionsPath(userID), collectionID, "subCollections")
}

// Container addresses an item container: a collection, or a sub-collection
// when SubCollectionID is set.
type Container struct {
	UserID          string
	CollectionID    string
	SubCollectionID string
}

// IsSub reports whether c is a sub-collection.
func (c Container) IsSub() bool {
	return c.SubCollectionID != ""
}

// parent returns the path and id of the container document itself.
func (c Container) parent() (string, string) {
	if c.IsSub() {
		return subCollectionsPath(c.UserID, c.CollectionID), c.SubCollectionID
	}
	return collectionsPath(c.UserID), c.CollectionID
}

// ItemsPath is the path of the container's items.
func (c Container) ItemsPath() string {
	path, id := c.parent()
	return docstore.Join(path, id, "items")
}
