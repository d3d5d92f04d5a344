package errors

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	MongoLabels  []string `json:"mongo_labels,omitempty"`
	MongoCode    int32    `json:"mongo_code,omitempty"`
	MongoMessage string   `json:"mongo_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		d.MongoLabels = cmdErr.Labels
		d.MongoCode = cmdErr.Code
		d.MongoMessage = cmdErr.Message
		return d
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		d.MongoLabels = writeErr.Labels
		for _, we := range writeErr.WriteErrors {
			d.MongoCode = int32(we.Code)
			d.MongoMessage = we.Message
			break
		}
		return d
	}

	return d
}
