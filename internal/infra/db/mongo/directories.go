package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domainlistings "campusmarket/internal/domain/listings"
)

// ListingDirectory reads listing snapshots from the "listings" collection
// maintained by the catalog service. Missing documents map to
// listings.ErrNotFound so chat previews degrade to placeholders.
type ListingDirectory struct {
	col *mongo.Collection
}

func NewListingDirectory(db *mongo.Database) *ListingDirectory {
	return &ListingDirectory{col: db.Collection("listings")}
}

func (d *ListingDirectory) SnapshotByID(ctx context.Context, id domainlistings.ListingID) (domainlistings.Snapshot, error) {
	var doc listingDocument
	if err := d.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainlistings.Snapshot{}, domainlistings.ErrNotFound
		}
		return domainlistings.Snapshot{}, err
	}
	image := ""
	if len(doc.ImageURLs) > 0 {
		image = doc.ImageURLs[0]
	}
	return domainlistings.Snapshot{
		ID:       domainlistings.ListingID(doc.ID),
		SellerID: doc.SellerID,
		Title:    doc.Title,
		ImageURL: image,
		Status:   domainlistings.NormalizeStatus(doc.Status),
	}, nil
}

type listingDocument struct {
	ID        string   `bson:"_id"`
	SellerID  string   `bson:"seller_id"`
	Title     string   `bson:"title"`
	ImageURLs []string `bson:"image_urls"`
	Status    string   `bson:"status"`
}

var _ domainlistings.Directory = (*ListingDirectory)(nil)
