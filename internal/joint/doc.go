// Package joint describes the generalized coordinates of an articulated body.
//
// A [Model] is an ordered list of joints. Each joint contributes a block of
// generalized position (qpos) and a block of generalized velocity (qvel):
//
//   - [Free]: 3 translations + unit quaternion (nq 7, nv 6)
//   - [Ball]: unit quaternion (nq 4, nv 3)
//   - [Hinge], [Slide]: one scalar (nq 1, nv 1)
//
// Because quaternion joints have more position coordinates than velocity
// coordinates, positions cannot be perturbed or integrated by plain addition.
// Every position index therefore carries a [Rule]:
//
//   - [Direct]: the coordinate is Euclidean, add to it directly
//   - [Tangent]: the coordinate is a quaternion vector component; move along
//     the matching tangent axis via [IntegrateQuat]
//   - [Inert]: the quaternion scalar component, which owns no tangent axis
//
// # Example
//
//	m := joint.NewModel(3, 0, joint.Joint{Name: "root", Kind: joint.Free})
//	switch r := m.Rule(4).(type) {
//	case joint.Tangent:
//	    joint.IntegrateQuat(qpos[r.QuatAdr:r.QuatAdr+4], r.Omega(eps), 1)
//	case joint.Direct:
//	    qpos[r.Index] += eps
//	}
package joint
