package rbac

// Default policy. Anonymous guests never reach rbac-guarded routes; their
// access is checked per attempt via the guest token.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	"author": {
		"quiz:view",
		"quiz:create",
		"quiz:publish",
		"question:edit",
		"attempt:view-all",
	},
	"admin": {
		"*", // everything, including the attempt-access override
	},
}
