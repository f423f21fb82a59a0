// Package policy defines the condition and pattern configurations a user
// builds policies from, and serializes them to the policy expression grammar:
//
//	pk(KEY)  thresh(M,X1,...,Xn)  after(N)  older(N)  ALG(HASH)  and(A,B)  or(A,B)
//
// Serialization is a pure function of the configuration. Patterns expand to
// fixed skeletons of the primitives above:
//
//	Vault:        or(and(thresh(M,pk(k1),...,pk(kn)),after(delay)),pk(cancel))
//	Inheritance:  or(or(pk(owner),and(thresh(T,pk(h1),...),after(t1))),and(pk(third),after(t2)))
//	SimpleEscrow: or(and(pk(A),pk(B)),and(pk(arbiter),after(timeout)))
package policy
