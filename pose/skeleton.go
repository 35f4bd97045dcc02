package pose

// Limb is a pair of body parts joined by a line when drawing the skeleton
type Limb struct {
	From BodyPart
	To   BodyPart
}

// Skeleton is the set of limbs rendered over the camera preview, shoulders
// and hips first followed by the arms and legs
var Skeleton = []Limb{
	{LeftShoulder, RightShoulder},
	{LeftHip, RightHip},

	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},

	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
}
