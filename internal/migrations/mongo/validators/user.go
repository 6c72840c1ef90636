package validators

import "go.mongodb.org/mongo-driver/bson"

var UserValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"email",
			"password_hash",
			"role",
			"verified",
			"created_at",
		},
		"additionalProperties": false,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"email": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 254,
			},

			"password_hash": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"role": bson.M{
				"bsonType": "string",
				"enum":     []string{"patient", "admin"},
			},

			"verified": bson.M{
				"bsonType": "bool",
			},

			// Present only while a passcode is pending.
			"challenge": bson.M{
				"bsonType": "object",
				"required": []string{"code", "expires_at"},
				"properties": bson.M{
					"code": bson.M{
						"bsonType":  "string",
						"minLength": 6,
						"maxLength": 6,
					},
					"expires_at": bson.M{
						"bsonType": "date",
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
