package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"slot_id",
			"actor_id",
			"status",
			"created_at",
		},
		"additionalProperties": false,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"slot_id": bson.M{
				"bsonType": "objectId",
			},

			"actor_id": bson.M{
				"bsonType": "objectId",
			},

			"status": bson.M{
				"bsonType": "string",
				"enum":     []string{"confirmed", "cancelled"},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"cancelled_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
