package main

import "github.com/Tutortoise/drowsiness-service/models"

const (
	MsgAwake = "You look alert. Keep it up!"

	MsgDrowsy = "Signs of drowsiness detected over the last few frames. Consider taking a short break."

	MsgDegraded = "We couldn't analyze this frame. Please make sure the camera is working and your face is visible."
)

func resultMessage(r models.Result) string {
	switch {
	case r.Degraded():
		return MsgDegraded
	case r.Label == models.Drowsy:
		return MsgDrowsy
	default:
		return MsgAwake
	}
}
