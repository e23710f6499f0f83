package validators

import "go.mongodb.org/mongo-driver/bson"

var WaitlistUserValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"waitlist_id",
			"name",
			"email",
			"status",
			"joined_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"waitlist_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 256,
			},

			"email": bson.M{
				"bsonType":  "string",
				"maxLength": 254,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"accepted",
					"rejected",
				},
			},

			"joined_at": bson.M{
				"bsonType": "date",
			},

			"left_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
