package validators

import "go.mongodb.org/mongo-driver/bson"

// WaitlistValidator covers the core waitlist fields. Operator-declared
// additional fields are stored inline, so extra properties are allowed.
var WaitlistValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"end_event",
			"begins_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"end_event": bson.M{
				"bsonType": "string",
				"enum": []string{
					"max-signups-reached",
					"date-reached",
					"date-reached-lottery",
					"trigger",
				},
			},

			"begins_at": bson.M{
				"bsonType": "date",
			},

			"ends_at": bson.M{
				"bsonType": "date",
			},

			"max_participants": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},
		},
	},
}
