/*
Package badge packs and unpacks the compact resource identifier the
kernel delivers on every message.

# Layout

A badge is a 64-bit value, least-significant field first:

	cap_type:8 | space_id:16 | object_id:20 | client_pd_id:20

object_id == 0 is NullObj, reserved to mean "no object", and also
marks the allocation/administrative entry point of whatever component
cap_type names. space_id == 0 means "the default space of this type".
Every badge in circulation has cap_type != CapNone.

# Codec shape

Pack and Unpack are total over well-formed input: the four-field
struct is the message, Pack is the serialize, and a bad shape is
caught with BadBadge before anything is minted rather than discovered
downstream.
*/
package badge
