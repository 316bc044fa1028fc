/*
go-nightjar annotates video of tracked objects.  Raw detections from an
external object detection model are normalized into a canonical form, given
persistent identities by a multi object tracker, and rendered back onto the
frame together with a tapering trail of each object's recent positions.

A Session holds the per stream state, the track history, tracker and frame
counter, and must be Reset before a new stream starts.  Frames are processed
one at a time:

	sess, err := nightjar.NewSession(cfg, labels)
	...
	res, err := sess.ProcessFrame(ctx, nightjar.Frame{
		Width: img.Cols(), Height: img.Rows(), Raws: raws,
	})
	...
	err = sess.Render(&img, res)

See the cmd/nightjar directory for the video and stream front ends.
*/
package nightjar
